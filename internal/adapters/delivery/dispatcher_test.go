package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"newsroom/internal/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

type store struct {
	channels []domain.DeliveryChannel
	subs     []domain.Subscriber
	plans    map[int64]domain.SubscriptionPlan
}

func (s *store) ListDeliveryChannels(context.Context, int64) ([]domain.DeliveryChannel, error) {
	return s.channels, nil
}

func (s *store) ListSubscribers(context.Context, int64, domain.SubscriberChannel) ([]domain.Subscriber, error) {
	return s.subs, nil
}

func (s *store) GetSubscriber(context.Context, int64, domain.SubscriberChannel, string) (domain.Subscriber, error) {
	return domain.Subscriber{}, domain.ErrNotFound
}

func (s *store) CreateSubscriber(_ context.Context, sub domain.Subscriber) (domain.Subscriber, bool, error) {
	return sub, true, nil
}

func (s *store) RecordInboundMessage(context.Context, int64, time.Time, time.Time) (domain.Subscriber, error) {
	return domain.Subscriber{}, nil
}

func (s *store) GetPlan(_ context.Context, id int64) (domain.SubscriptionPlan, error) {
	if p, ok := s.plans[id]; ok {
		return p, nil
	}
	return domain.SubscriptionPlan{}, domain.ErrNotFound
}

func (s *store) TrialPlan(context.Context) (domain.SubscriptionPlan, error) {
	return domain.SubscriptionPlan{}, domain.ErrNotFound
}

type push struct {
	chatID int64
	audio  string
}

type fakePusher struct {
	pushes []push
	fail   map[int64]error
}

func (p *fakePusher) Push(_ context.Context, _ int64, chatID int64, _ string, audioPath string) error {
	if err := p.fail[chatID]; err != nil {
		return err
	}
	p.pushes = append(p.pushes, push{chatID: chatID, audio: audioPath})
	return nil
}

type fakeEmail struct {
	subject string
	err     error
	panics  bool
}

func (e *fakeEmail) Send(_ context.Context, _ domain.EmailChannelConfig, subject, _ string) error {
	if e.panics {
		panic("smtp")
	}
	e.subject = subject
	return e.err
}

type fakeWhatsApp struct {
	to, body string
	err      error
}

func (w *fakeWhatsApp) Send(_ context.Context, _ domain.WhatsAppChannelConfig, to, body string) error {
	w.to, w.body = to, body
	return w.err
}

func timePtr(t time.Time) *time.Time { return &t }

func telegramChannel() domain.DeliveryChannel {
	return domain.DeliveryChannel{Kind: domain.ChannelTelegram, IsActive: true, Telegram: &domain.TelegramChannelConfig{Token: "t"}}
}

func emailChannel() domain.DeliveryChannel {
	return domain.DeliveryChannel{Kind: domain.ChannelEmail, IsActive: true, Email: &domain.EmailChannelConfig{
		Host: "smtp.example.com", Username: "lea@example.com", Password: "wrong", Recipient: "lecteur@example.com",
	}}
}

func whatsappChannel() domain.DeliveryChannel {
	return domain.DeliveryChannel{Kind: domain.ChannelWhatsApp, IsActive: true, WhatsApp: &domain.WhatsAppChannelConfig{
		AccountSID: "AC1", AuthToken: "tok", From: "+14155238886", Recipient: "+33600000000",
	}}
}

func newDispatcher(st *store, p Pusher, e EmailSender, w WhatsAppSender) *Dispatcher {
	return NewDispatcher(st, st, p, e, w, fixedClock{now: now}, zerolog.Nop())
}

func TestDeliverEmailAuthFailure(t *testing.T) {
	st := &store{
		channels: []domain.DeliveryChannel{telegramChannel(), emailChannel()},
		subs: []domain.Subscriber{
			{ID: 1, ExternalID: "101", IsApproved: true, IsActive: true},
			{ID: 2, ExternalID: "102", SubscriptionEnd: timePtr(now.Add(time.Hour))},
			{ID: 3, ExternalID: "103", SubscriptionEnd: timePtr(now.Add(-time.Hour))},
		},
	}
	p := &fakePusher{}
	e := &fakeEmail{err: errors.New("535 authentication failed")}
	report := newDispatcher(st, p, e, nil).Deliver(context.Background(), domain.Persona{ID: 1, Name: "Léa"}, "texte", "/audio/a.mp3")

	if !report.Channels[domain.ChannelTelegram] || report.Channels[domain.ChannelEmail] {
		t.Fatalf("expected {telegram: true, email: false}, got %+v", report.Channels)
	}
	if report.Delivered != 2 || len(p.pushes) != 2 {
		t.Fatalf("expected 2 telegram deliveries, got %d (%d pushes)", report.Delivered, len(p.pushes))
	}
	if e.subject != "Résumé - Léa - 2026-10-15" {
		t.Fatalf("unexpected subject %q", e.subject)
	}
}

func TestDeliverCountsEverySuccessfulChannel(t *testing.T) {
	st := &store{
		channels: []domain.DeliveryChannel{
			telegramChannel(),
			emailChannel(),
			whatsappChannel(),
			{Kind: domain.ChannelEmail, IsActive: false},
		},
		subs: []domain.Subscriber{{ID: 1, ExternalID: "101", IsApproved: true, IsActive: true}},
	}
	w := &fakeWhatsApp{}
	report := newDispatcher(st, &fakePusher{}, &fakeEmail{}, w).Deliver(context.Background(), domain.Persona{ID: 1, Name: "Léa"}, "texte", "")

	if report.Delivered != 3 || len(report.Channels) != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if w.to != "+33600000000" || !strings.HasPrefix(w.body, "📰 Résumé - Léa\n\n") {
		t.Fatalf("unexpected whatsapp message: %q %q", w.to, w.body)
	}
}

func TestDeliverTelegramBotDown(t *testing.T) {
	st := &store{
		channels: []domain.DeliveryChannel{telegramChannel()},
		subs: []domain.Subscriber{
			{ID: 1, ExternalID: "101", IsApproved: true, IsActive: true},
			{ID: 2, ExternalID: "102", IsApproved: true, IsActive: true},
		},
	}
	p := &fakePusher{fail: map[int64]error{101: domain.ErrBotNotRunning}}
	report := newDispatcher(st, p, nil, nil).Deliver(context.Background(), domain.Persona{ID: 1}, "texte", "")
	if report.Channels[domain.ChannelTelegram] || report.Delivered != 0 {
		t.Fatalf("bot down must fail the channel, got %+v", report)
	}
}

func TestDeliverTelegramSubscriberFailureIsTallied(t *testing.T) {
	st := &store{
		channels: []domain.DeliveryChannel{telegramChannel()},
		subs: []domain.Subscriber{
			{ID: 1, ExternalID: "101", IsApproved: true, IsActive: true},
			{ID: 2, ExternalID: "102", IsApproved: true, IsActive: true},
			{ID: 3, ExternalID: "not-a-chat", IsApproved: true, IsActive: true},
		},
	}
	p := &fakePusher{fail: map[int64]error{101: errors.New("Forbidden: bot was blocked by the user")}}
	report := newDispatcher(st, p, nil, nil).Deliver(context.Background(), domain.Persona{ID: 1}, "texte", "")
	if !report.Channels[domain.ChannelTelegram] || report.Delivered != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDeliverRespectsPlanCapabilities(t *testing.T) {
	st := &store{
		channels: []domain.DeliveryChannel{telegramChannel()},
		subs: []domain.Subscriber{
			{ID: 1, ExternalID: "101", IsApproved: true, IsActive: true, PlanID: ptr(int64(1))},
			{ID: 2, ExternalID: "102", IsApproved: true, IsActive: true, PlanID: ptr(int64(2))},
		},
		plans: map[int64]domain.SubscriptionPlan{
			1: {ID: 1, CanReceiveSummaries: true, CanReceiveAudio: false},
			2: {ID: 2, CanReceiveSummaries: false},
		},
	}
	p := &fakePusher{}
	newDispatcher(st, p, nil, nil).Deliver(context.Background(), domain.Persona{ID: 1}, "texte", "/audio/a.mp3")
	if len(p.pushes) != 1 || p.pushes[0].chatID != 101 || p.pushes[0].audio != "" {
		t.Fatalf("unexpected pushes: %+v", p.pushes)
	}
}

func ptr[T any](v T) *T { return &v }

func TestDeliverRecoversSenderPanic(t *testing.T) {
	st := &store{channels: []domain.DeliveryChannel{emailChannel(), whatsappChannel()}}
	report := newDispatcher(st, nil, &fakeEmail{panics: true}, &fakeWhatsApp{}).Deliver(context.Background(), domain.Persona{ID: 1}, "texte", "")
	if report.Channels[domain.ChannelEmail] || !report.Channels[domain.ChannelWhatsApp] || report.Delivered != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDeliverMissingCredentials(t *testing.T) {
	st := &store{channels: []domain.DeliveryChannel{
		{Kind: domain.ChannelWhatsApp, IsActive: true, WhatsApp: &domain.WhatsAppChannelConfig{Recipient: "+33600000000"}},
		{Kind: domain.ChannelTelegram, IsActive: true},
	}}
	w := &fakeWhatsApp{}
	report := newDispatcher(st, &fakePusher{}, nil, w).Deliver(context.Background(), domain.Persona{ID: 1}, "texte", "")
	if report.Channels[domain.ChannelWhatsApp] || report.Channels[domain.ChannelTelegram] || w.to != "" {
		t.Fatalf("unconfigured channels must fail without sending: %+v", report)
	}
}

func TestSummaryBodyTruncates(t *testing.T) {
	body := SummaryBody("Léa", strings.Repeat("x", 2000))
	text := strings.TrimPrefix(body, "📰 Résumé - Léa\n\n")
	if n := len([]rune(text)); n != WhatsAppBodyLimit {
		t.Fatalf("expected %d chars, got %d", WhatsAppBodyLimit, n)
	}
}

type fakeCreator struct {
	params *openapi.CreateMessageParams
	err    error
}

func (c *fakeCreator) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	c.params = params
	return &openapi.ApiV2010Message{}, c.err
}

func TestTwilioSenderAddresses(t *testing.T) {
	creator := &fakeCreator{}
	var gotSID string
	s := &TwilioSender{newClient: func(sid, _ string) MessageCreator {
		gotSID = sid
		return creator
	}}
	cfg := domain.WhatsAppChannelConfig{AccountSID: "AC1", AuthToken: "tok", From: "+14155238886"}
	if err := s.Send(context.Background(), cfg, "+33600000000", "Bonjour"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotSID != "AC1" || *creator.params.From != "whatsapp:+14155238886" || *creator.params.To != "whatsapp:+33600000000" || *creator.params.Body != "Bonjour" {
		t.Fatalf("unexpected params: %+v", creator.params)
	}

	creator.err = errors.New("21211 invalid number")
	if err := s.Send(context.Background(), cfg, "+1", "x"); err == nil {
		t.Fatalf("expected error from twilio")
	}
	if err := s.Send(context.Background(), domain.WhatsAppChannelConfig{}, "+1", "x"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML("Résumé - Léa", "Bonjour,\n\n**Titre** <script>\nligne")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	for _, want := range []string{"<strong>Titre</strong>", "<br>", "Résumé - Léa", "généré automatiquement"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("raw html must not pass through: %s", out)
	}
}

func TestBuildMessage(t *testing.T) {
	cfg := domain.EmailChannelConfig{Username: "lea@example.com", Recipient: "lecteur@example.com"}
	msg, err := BuildMessage(cfg, "Résumé", "texte")
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil || len(rcpts) != 1 || rcpts[0] != "lecteur@example.com" {
		t.Fatalf("unexpected recipients %v (%v)", rcpts, err)
	}
	if _, err := BuildMessage(domain.EmailChannelConfig{Username: "lea", Recipient: "x"}, "s", "t"); err == nil {
		t.Fatalf("invalid address must be rejected")
	}
}
