package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/usecase/inbound"
)

// Inbound обрабатывает сообщения подписчиков.
type Inbound interface {
	Handle(ctx context.Context, msg inbound.Message) inbound.Reply
}

// Handler переводит апдейты Telegram в команды подписчиков.
type Handler struct {
	inbound Inbound
	log     zerolog.Logger
}

// NewHandler создаёт обработчик апдейтов.
func NewHandler(in Inbound, log zerolog.Logger) *Handler {
	return &Handler{inbound: in, log: log}
}

// HandleUpdate обрабатывает текстовое сообщение и отвечает в тот же чат.
func (h *Handler) HandleUpdate(ctx context.Context, personaID int64, client Client, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	in := inbound.Message{
		PersonaID:  personaID,
		Channel:    domain.SubscriberTelegram,
		ExternalID: strconv.FormatInt(msg.Chat.ID, 10),
		Text:       msg.Text,
	}
	if msg.From != nil {
		in.Username = msg.From.UserName
		in.FirstName = msg.From.FirstName
		in.LastName = msg.From.LastName
	}

	reply := h.inbound.Handle(ctx, in)
	if err := sendText(client, msg.Chat.ID, reply.Text); err != nil {
		h.log.Error().Err(err).Int64("persona", personaID).Msg("bot: не удалось ответить")
		return
	}
	if reply.AudioPath != "" {
		if err := sendAudio(client, msg.Chat.ID, reply.AudioPath); err != nil {
			h.log.Error().Err(err).Int64("persona", personaID).Msg("bot: не удалось отправить аудио")
		}
	}
}
