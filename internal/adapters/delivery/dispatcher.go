package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// Pusher отправляет сообщение в чат через живого бота персоны.
type Pusher interface {
	Push(ctx context.Context, personaID, chatID int64, text, audioPath string) error
}

// EmailSender отправляет письмо со сводкой.
type EmailSender interface {
	Send(ctx context.Context, cfg domain.EmailChannelConfig, subject, text string) error
}

// WhatsAppSender отправляет сообщение WhatsApp.
type WhatsAppSender interface {
	Send(ctx context.Context, cfg domain.WhatsAppChannelConfig, to, body string) error
}

// Dispatcher рассылает сводку по активным каналам персоны.
type Dispatcher struct {
	channels    domain.DeliveryChannelRepo
	subscribers domain.SubscriberRepo
	pusher      Pusher
	email       EmailSender
	whatsapp    WhatsAppSender
	clock       domain.Clock
	log         zerolog.Logger
}

var _ domain.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher создаёт диспетчер. Отсутствующий отправитель делает канал ненастроенным.
func NewDispatcher(channels domain.DeliveryChannelRepo, subscribers domain.SubscriberRepo, pusher Pusher, email EmailSender, whatsapp WhatsAppSender, clock domain.Clock, log zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Dispatcher{
		channels:    channels,
		subscribers: subscribers,
		pusher:      pusher,
		email:       email,
		whatsapp:    whatsapp,
		clock:       clock,
		log:         log,
	}
}

// Deliver проходит по активным каналам. Канал считается успешным, только если
// успешны все его записи одного типа.
func (d *Dispatcher) Deliver(ctx context.Context, persona domain.Persona, text, audioPath string) domain.DeliveryReport {
	report := domain.DeliveryReport{Channels: make(map[domain.ChannelKind]bool)}
	channels, err := d.channels.ListDeliveryChannels(ctx, persona.ID)
	if err != nil {
		d.log.Error().Err(err).Int64("persona", persona.ID).Msg("delivery: не удалось получить каналы")
		return report
	}

	for _, ch := range channels {
		if !ch.IsActive {
			continue
		}
		ok, delivered := d.deliverChannel(ctx, persona, ch, text, audioPath)
		if prev, seen := report.Channels[ch.Kind]; seen {
			ok = ok && prev
		}
		report.Channels[ch.Kind] = ok
		report.Delivered += delivered
		metrics.ObserveDelivery(string(ch.Kind), ok)
	}
	if len(report.Channels) == 0 {
		d.log.Warn().Int64("persona", persona.ID).Msg("delivery: нет активных каналов")
	}
	return report
}

func (d *Dispatcher) deliverChannel(ctx context.Context, persona domain.Persona, ch domain.DeliveryChannel, text, audioPath string) (ok bool, delivered int) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Int64("persona", persona.ID).Str("channel", string(ch.Kind)).Interface("panic", r).Msg("delivery: паника отправителя")
			ok = false
		}
	}()

	var err error
	switch ch.Kind {
	case domain.ChannelTelegram:
		return d.telegram(ctx, persona, ch, text, audioPath)
	case domain.ChannelEmail:
		err = d.sendEmail(ctx, persona, ch, text)
	case domain.ChannelWhatsApp:
		err = d.sendWhatsApp(ctx, persona, ch, text)
	default:
		err = fmt.Errorf("неизвестный канал %q", ch.Kind)
	}
	if err != nil {
		d.log.Error().Err(err).Int64("persona", persona.ID).Str("channel", string(ch.Kind)).Msg("delivery: канал не доставил сводку")
		return false, 0
	}
	d.log.Info().Int64("persona", persona.ID).Str("channel", string(ch.Kind)).Msg("delivery: сводка доставлена")
	return true, 1
}

// telegram рассылает сводку подписчикам с действующим доступом. Ошибка отдельного
// подписчика не делает канал неуспешным, неуспех означает только неработающего бота.
func (d *Dispatcher) telegram(ctx context.Context, persona domain.Persona, ch domain.DeliveryChannel, text, audioPath string) (bool, int) {
	if ch.Telegram == nil || ch.Telegram.Token == "" || d.pusher == nil {
		d.log.Warn().Int64("persona", persona.ID).Msg("delivery: telegram не настроен")
		return false, 0
	}
	subs, err := d.subscribers.ListSubscribers(ctx, persona.ID, domain.SubscriberTelegram)
	if err != nil {
		d.log.Error().Err(err).Int64("persona", persona.ID).Msg("delivery: не удалось получить подписчиков")
		return false, 0
	}

	now := d.clock.Now()
	plans := make(map[int64]domain.SubscriptionPlan)
	delivered := 0
	for _, sub := range subs {
		if !sub.HasAccess(now) {
			continue
		}
		plan := d.plan(ctx, sub, plans)
		if !plan.CanReceiveSummaries {
			continue
		}
		chatID, err := strconv.ParseInt(sub.ExternalID, 10, 64)
		if err != nil {
			d.log.Warn().Int64("subscriber", sub.ID).Str("external_id", sub.ExternalID).Msg("delivery: некорректный chat id")
			continue
		}
		audio := audioPath
		if !plan.CanReceiveAudio {
			audio = ""
		}
		if err := d.pusher.Push(ctx, persona.ID, chatID, text, audio); err != nil {
			if isBotDown(err) {
				d.log.Error().Err(err).Int64("persona", persona.ID).Msg("delivery: бот персоны не запущен")
				return false, delivered
			}
			d.log.Error().Err(err).Int64("persona", persona.ID).Int64("subscriber", sub.ID).Msg("delivery: не удалось отправить подписчику")
			continue
		}
		delivered++
	}
	d.log.Info().Int64("persona", persona.ID).Int("delivered", delivered).Msg("delivery: telegram-рассылка завершена")
	return true, delivered
}

func (d *Dispatcher) plan(ctx context.Context, sub domain.Subscriber, cache map[int64]domain.SubscriptionPlan) domain.SubscriptionPlan {
	if sub.PlanID == nil {
		return domain.DefaultPlan()
	}
	if plan, ok := cache[*sub.PlanID]; ok {
		return plan
	}
	plan, err := d.subscribers.GetPlan(ctx, *sub.PlanID)
	if err != nil {
		plan = domain.DefaultPlan()
	}
	cache[*sub.PlanID] = plan
	return plan
}

func (d *Dispatcher) sendEmail(ctx context.Context, persona domain.Persona, ch domain.DeliveryChannel, text string) error {
	cfg := ch.Email
	if cfg == nil || cfg.Host == "" || cfg.Recipient == "" || cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("email: %w", domain.ErrNotConfigured)
	}
	if d.email == nil {
		return fmt.Errorf("email: %w", domain.ErrNotConfigured)
	}
	subject := fmt.Sprintf("Résumé - %s - %s", persona.Name, d.clock.Now().Format("2006-01-02"))
	return d.email.Send(ctx, *cfg, subject, text)
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, persona domain.Persona, ch domain.DeliveryChannel, text string) error {
	cfg := ch.WhatsApp
	if cfg == nil || cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" || cfg.Recipient == "" {
		return fmt.Errorf("whatsapp: %w", domain.ErrNotConfigured)
	}
	if d.whatsapp == nil {
		return fmt.Errorf("whatsapp: %w", domain.ErrNotConfigured)
	}
	return d.whatsapp.Send(ctx, *cfg, cfg.Recipient, SummaryBody(persona.Name, text))
}

func isBotDown(err error) bool {
	return errors.Is(err, domain.ErrBotNotRunning) || errors.Is(err, domain.ErrNotConfigured)
}
