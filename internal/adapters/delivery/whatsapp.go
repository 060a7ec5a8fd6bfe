package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"newsroom/internal/adapters/telegram"
	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// WhatsAppBodyLimit предел текста сводки в сообщении WhatsApp.
const WhatsAppBodyLimit = 1500

// MessageCreator часть Twilio REST API для отправки сообщений.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender отправляет сообщения WhatsApp через Twilio Messages API.
type TwilioSender struct {
	newClient func(accountSID, authToken string) MessageCreator
}

// NewTwilioSender создаёт отправителя с настоящим клиентом Twilio.
func NewTwilioSender() *TwilioSender {
	return &TwilioSender{newClient: func(accountSID, authToken string) MessageCreator {
		return twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}).Api
	}}
}

// Send отправляет body на номер to от имени whatsapp:{from}. Клиент Twilio не принимает
// контекст, поэтому отменённый контекст проверяется до вызова.
func (s *TwilioSender) Send(ctx context.Context, cfg domain.WhatsAppChannelConfig, to, body string) error {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return fmt.Errorf("whatsapp: %w", domain.ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetFrom(whatsappAddress(cfg.From))
	params.SetTo(whatsappAddress(to))
	params.SetBody(body)

	start := time.Now()
	resp, err := s.newClient(cfg.AccountSID, cfg.AuthToken).CreateMessage(params)
	metrics.ObserveNetworkRequest("twilio", "create_message", cfg.From, start, err)
	if err != nil {
		return fmt.Errorf("whatsapp: отправка на %s: %w", to, err)
	}
	if resp != nil && resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		return fmt.Errorf("whatsapp: отправка на %s: %s", to, *resp.ErrorMessage)
	}
	return nil
}

// SummaryBody формирует текст сводки для WhatsApp.
func SummaryBody(personaName, text string) string {
	return fmt.Sprintf("📰 Résumé - %s\n\n%s", personaName, telegram.Truncate(text, WhatsAppBodyLimit))
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
