package delivery

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"time"

	"github.com/wneessen/go-mail"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const (
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 10 * time.Second
)

var markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps()))

// SMTPSender отправляет письма через SMTP со STARTTLS.
type SMTPSender struct {
	timeout time.Duration
}

// NewSMTPSender создаёт отправителя писем.
func NewSMTPSender(timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	return &SMTPSender{timeout: timeout}
}

// Send собирает письмо из текста и HTML-версии и отправляет его.
func (s *SMTPSender) Send(ctx context.Context, cfg domain.EmailChannelConfig, subject, text string) error {
	msg, err := BuildMessage(cfg, subject, text)
	if err != nil {
		return err
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultSMTPPort
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(s.timeout),
	)
	if err != nil {
		return fmt.Errorf("email: клиент smtp: %w", err)
	}
	start := time.Now()
	err = client.DialAndSendWithContext(ctx, msg)
	metrics.ObserveNetworkRequest("smtp", "send", cfg.Host, start, err)
	if err != nil {
		return fmt.Errorf("email: отправка на %s: %w", cfg.Recipient, err)
	}
	return nil
}

// BuildMessage собирает multipart-письмо: текст и HTML, отрендеренный из текста.
func BuildMessage(cfg domain.EmailChannelConfig, subject, text string) (*mail.Msg, error) {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("email: отправитель: %w", err)
	}
	if err := msg.To(cfg.Recipient); err != nil {
		return nil, fmt.Errorf("email: получатель: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)

	body, err := RenderHTML(subject, text)
	if err != nil {
		return nil, err
	}
	msg.AddAlternativeString(mail.TypeTextHTML, body)
	return msg, nil
}

// RenderHTML оборачивает отрендеренный goldmark текст сводки в простую страницу.
func RenderHTML(title, text string) (string, error) {
	var content bytes.Buffer
	if err := markdown.Convert([]byte(text), &content); err != nil {
		return "", fmt.Errorf("email: html: %w", err)
	}
	var b bytes.Buffer
	b.WriteString(`<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">`)
	b.WriteString(`<h2 style="color: #0066cc;">` + html.EscapeString(title) + `</h2>`)
	b.Write(content.Bytes())
	b.WriteString(`<hr style="border: none; border-top: 1px solid #ddd; margin: 20px 0;">`)
	b.WriteString(`<p style="font-size: 12px; color: #999;">Cet email a été généré automatiquement</p>`)
	b.WriteString(`</body></html>`)
	return b.String(), nil
}
