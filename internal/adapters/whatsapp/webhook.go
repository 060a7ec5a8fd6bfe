package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newsroom/internal/adapters/delivery"
	"newsroom/internal/adapters/telegram"
	"newsroom/internal/domain"
	httpinfra "newsroom/internal/infra/http"
	"newsroom/internal/usecase/inbound"
)

const (
	addressPrefix = "whatsapp:"
	replyTimeout  = 90 * time.Second
	emptyTwiML    = "<?xml version=\"1.0\" encoding=\"UTF-8\"?><Response></Response>"
)

// Inbound обрабатывает сообщения подписчиков.
type Inbound interface {
	Handle(ctx context.Context, msg inbound.Message) inbound.Reply
}

// Handler принимает вебхук WhatsApp персоны и отвечает через её канал.
// Ответ уходит асинхронно, Wait дожидается начатых отправок.
type Handler struct {
	inbound     Inbound
	channels    domain.DeliveryChannelRepo
	sender      delivery.WhatsAppSender
	verifyToken string
	log         zerolog.Logger
	wg          sync.WaitGroup
}

// NewHandler создаёт обработчик вебхука.
func NewHandler(in Inbound, channels domain.DeliveryChannelRepo, sender delivery.WhatsAppSender, verifyToken string, log zerolog.Logger) *Handler {
	return &Handler{inbound: in, channels: channels, sender: sender, verifyToken: verifyToken, log: log}
}

// Routes регистрирует маршруты вебхука.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/whatsapp/{personaID}", h.verify)
	r.Post("/whatsapp/{personaID}", h.receive)
}

// Wait ждёт отправки всех начатых ответов.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		httpinfra.WriteError(w, http.StatusForbidden, "verification failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	personaID, err := strconv.ParseInt(chi.URLParam(r, "personaID"), 10, 64)
	if err != nil || personaID <= 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid persona id")
		return
	}
	if err := r.ParseForm(); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid form")
		return
	}
	from := strings.TrimPrefix(strings.TrimSpace(r.PostForm.Get("From")), addressPrefix)
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if from == "" || body == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "from and body are required")
		return
	}

	msg := inbound.Message{
		PersonaID:  personaID,
		Channel:    domain.SubscriberWhatsApp,
		ExternalID: from,
		FirstName:  strings.TrimSpace(r.PostForm.Get("ProfileName")),
		Text:       body,
	}
	h.log.Info().Int64("persona", personaID).Str("request_id", httpinfra.RequestID(r)).Msg("whatsapp: входящее сообщение")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), replyTimeout)
		defer cancel()
		if err := h.respond(ctx, msg); err != nil {
			h.log.Error().Err(err).Int64("persona", personaID).Msg("whatsapp: не удалось ответить")
		}
	}()

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, emptyTwiML)
}

func (h *Handler) respond(ctx context.Context, msg inbound.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника: %v", r)
		}
	}()
	reply := h.inbound.Handle(ctx, msg)

	cfg, err := h.channelConfig(ctx, msg.PersonaID)
	if err != nil {
		return err
	}
	for _, part := range telegram.Split(reply.Text, delivery.WhatsAppBodyLimit) {
		if err := h.sender.Send(ctx, cfg, msg.ExternalID, part); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) channelConfig(ctx context.Context, personaID int64) (domain.WhatsAppChannelConfig, error) {
	channels, err := h.channels.ListDeliveryChannels(ctx, personaID)
	if err != nil {
		return domain.WhatsAppChannelConfig{}, fmt.Errorf("каналы персоны: %w", err)
	}
	for _, ch := range channels {
		if ch.Kind == domain.ChannelWhatsApp && ch.IsActive && ch.WhatsApp != nil {
			return *ch.WhatsApp, nil
		}
	}
	return domain.WhatsAppChannelConfig{}, fmt.Errorf("whatsapp-канал персоны %d: %w", personaID, domain.ErrNotConfigured)
}
