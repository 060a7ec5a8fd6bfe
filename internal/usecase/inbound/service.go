package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/usecase/digest"
	"newsroom/internal/usecase/schedule"
)

const (
	defaultContextItems    = 50
	defaultFilterThreshold = 20
	minRelevantItems       = 10
	articlesLimit          = 20
)

const (
	textStartFirst  = "Tapez /start pour commencer."
	textExpired     = "Votre accès a expiré."
	textNoSummary   = "Aucun résumé disponible."
	textNoPersona   = "Journaliste non trouvé."
	textFailure     = "Une erreur est survenue, réessayez plus tard."
	textNoQuestions = "Votre abonnement ne permet pas de poser des questions."
	textArticlesUse = "Utilisation: /articles AAAA-MM-JJ"
	textHelp        = `Commandes disponibles:

/start - Démarrer
/help - Aide
/status - Mon abonnement
/latest - Dernier résumé
/articles AAAA-MM-JJ - Articles du jour

Posez-moi n'importe quelle question sur l'actualité !`
)

// Message входящее сообщение подписчика из любого канала.
type Message struct {
	PersonaID  int64
	Channel    domain.SubscriberChannel
	ExternalID string
	Username   string
	FirstName  string
	LastName   string
	Text       string
}

// Reply ответ персоны. AudioPath заполняется, если к ответу приложена озвучка.
type Reply struct {
	Text      string
	AudioPath string
}

// Options параметры контекста ответов.
type Options struct {
	ContextItems    int
	FilterThreshold int
	FallbackTZ      string
}

// Service обрабатывает команды и вопросы подписчиков, общие для Telegram и WhatsApp.
type Service struct {
	personas    domain.PersonaRepo
	subscribers domain.SubscriberRepo
	summaries   domain.SummaryRepo
	content     domain.ContentRepo
	providers   domain.SummarizerRegistry
	events      domain.BusinessMetricRepo
	clock       domain.Clock
	opts        Options
	logger      zerolog.Logger
}

// NewService создаёт сервис входящих сообщений.
func NewService(personas domain.PersonaRepo, subscribers domain.SubscriberRepo, summaries domain.SummaryRepo, content domain.ContentRepo, providers domain.SummarizerRegistry, events domain.BusinessMetricRepo, clock domain.Clock, opts Options, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if opts.ContextItems <= 0 {
		opts.ContextItems = defaultContextItems
	}
	if opts.FilterThreshold <= 0 {
		opts.FilterThreshold = defaultFilterThreshold
	}
	return &Service{
		personas:    personas,
		subscribers: subscribers,
		summaries:   summaries,
		content:     content,
		providers:   providers,
		events:      events,
		clock:       clock,
		opts:        opts,
		logger:      logger,
	}
}

// Handle разбирает сообщение и возвращает ответ. Ошибки хранилища логируются,
// подписчик получает общий текст.
func (s *Service) Handle(ctx context.Context, msg Message) Reply {
	persona, err := s.personas.GetPersona(ctx, msg.PersonaID)
	if errors.Is(err, domain.ErrNotFound) {
		return Reply{Text: textNoPersona}
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("persona", msg.PersonaID).Msg("inbound: персона недоступна")
		return Reply{Text: textFailure}
	}

	command, args := parseCommand(msg.Text)
	var reply Reply
	switch command {
	case "":
		reply, err = s.question(ctx, persona, msg)
	case "/start":
		reply, err = s.start(ctx, persona, msg)
	case "/help":
		reply = Reply{Text: textHelp}
	case "/status":
		reply, err = s.status(ctx, msg)
	case "/latest":
		reply, err = s.latest(ctx, msg)
	case "/articles":
		reply, err = s.articles(ctx, persona, msg, args)
	default:
		reply = Reply{Text: textHelp}
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("persona", persona.ID).Str("channel", string(msg.Channel)).Str("command", command).Msg("inbound: ошибка обработки сообщения")
		return Reply{Text: textFailure}
	}
	return reply
}

func (s *Service) start(ctx context.Context, persona domain.Persona, msg Message) (Reply, error) {
	now := s.clock.Now()
	sub := domain.Subscriber{
		PersonaID:  persona.ID,
		Channel:    msg.Channel,
		ExternalID: msg.ExternalID,
		Username:   msg.Username,
		FirstName:  msg.FirstName,
		LastName:   msg.LastName,
		IsActive:   true,
	}
	plan, err := s.subscribers.TrialPlan(ctx)
	switch {
	case err == nil:
		sub.PlanID = &plan.ID
	case errors.Is(err, domain.ErrNotFound):
	default:
		return Reply{}, fmt.Errorf("пробный тариф: %w", err)
	}
	start, end := domain.TrialWindow(now, plan)
	sub.SubscriptionStart = &start
	sub.SubscriptionEnd = &end

	stored, created, err := s.subscribers.CreateSubscriber(ctx, sub)
	if err != nil {
		return Reply{}, fmt.Errorf("регистрация подписчика: %w", err)
	}
	if !created {
		return Reply{Text: greeting(stored, msg)}, nil
	}

	s.record(ctx, domain.BusinessMetricEventSubscriberRegistered, persona.ID, stored.ID, map[string]any{
		"channel": string(msg.Channel),
	})
	s.logger.Info().Int64("persona", persona.ID).Int64("subscriber", stored.ID).Str("channel", string(msg.Channel)).Msg("inbound: новый подписчик")

	days := int(end.Sub(start).Hours() / 24)
	return Reply{Text: fmt.Sprintf(`Bienvenue ! Je suis %s, votre journaliste IA.

Vous bénéficiez d'une période d'essai de %d jours:
• Résumés quotidiens des actualités
• Posez-moi vos questions sur l'actualité

Tapez /help pour voir les commandes.`, persona.Name, days)}, nil
}

func (s *Service) status(ctx context.Context, msg Message) (Reply, error) {
	sub, ok, err := s.subscriber(ctx, msg)
	if err != nil || !ok {
		return Reply{Text: textStartFirst}, err
	}
	now := s.clock.Now()
	switch {
	case sub.IsApproved:
		status := "Abonnement actif"
		if sub.PlanID != nil {
			plan, err := s.plan(ctx, sub)
			if err != nil {
				return Reply{}, err
			}
			status += " - " + plan.Name
		}
		return Reply{Text: "Statut: " + status}, nil
	case sub.SubscriptionEnd != nil && sub.SubscriptionEnd.After(now):
		days := int(sub.SubscriptionEnd.Sub(now).Hours() / 24)
		return Reply{Text: fmt.Sprintf("Statut: Période d'essai (%d jours restants)", days)}, nil
	default:
		return Reply{Text: "Statut: Accès expiré"}, nil
	}
}

func (s *Service) latest(ctx context.Context, msg Message) (Reply, error) {
	sub, ok, err := s.subscriber(ctx, msg)
	if err != nil {
		return Reply{}, err
	}
	if !ok || !sub.HasAccess(s.clock.Now()) {
		return Reply{Text: textExpired}, nil
	}
	summary, err := s.summaries.LatestSummary(ctx, msg.PersonaID)
	if errors.Is(err, domain.ErrNotFound) {
		return Reply{Text: textNoSummary}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("последняя сводка: %w", err)
	}
	plan, err := s.plan(ctx, sub)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{Text: summary.Text}
	if plan.CanReceiveAudio {
		reply.AudioPath = summary.AudioPath
	}
	return reply, nil
}

func (s *Service) articles(ctx context.Context, persona domain.Persona, msg Message, args string) (Reply, error) {
	sub, ok, err := s.subscriber(ctx, msg)
	if err != nil {
		return Reply{}, err
	}
	if !ok || !sub.HasAccess(s.clock.Now()) {
		return Reply{Text: textExpired}, nil
	}
	loc, _ := schedule.ResolveLocation(persona.Timezone, s.opts.FallbackTZ)
	day, err := schedule.ParseDay(args, loc)
	if err != nil {
		return Reply{Text: textArticlesUse}, nil
	}
	from, to := schedule.LocalDay(day)
	items, err := s.content.ListContentBetween(ctx, persona.ID, from, to, articlesLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("материалы за день: %w", err)
	}
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	return Reply{Text: digest.ArticleList(day.Format("02/01/2006"), titles)}, nil
}

func (s *Service) question(ctx context.Context, persona domain.Persona, msg Message) (Reply, error) {
	sub, ok, err := s.subscriber(ctx, msg)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Text: textStartFirst}, nil
	}
	now := s.clock.Now()
	if !sub.HasAccess(now) {
		return Reply{Text: textExpired}, nil
	}
	plan, err := s.plan(ctx, sub)
	if err != nil {
		return Reply{}, err
	}
	if !plan.CanAskQuestions {
		return Reply{Text: textNoQuestions}, nil
	}

	dayStart, _ := schedule.LocalDay(schedule.LocalTime(persona, now, s.opts.FallbackTZ))
	updated, err := s.subscribers.RecordInboundMessage(ctx, sub.ID, now, dayStart)
	if err != nil {
		return Reply{}, fmt.Errorf("счётчики сообщений: %w", err)
	}
	if !plan.AllowsMessage(updated.MessagesToday) {
		return Reply{Text: fmt.Sprintf("Vous avez atteint la limite de %d messages pour aujourd'hui.", plan.MaxMessagesPerDay)}, nil
	}

	items, err := s.content.ListRecentContent(ctx, persona.ID, s.opts.ContextItems)
	if err != nil {
		return Reply{}, fmt.Errorf("контекст ответа: %w", err)
	}
	items = Relevant(msg.Text, items, s.opts.FilterThreshold)

	answer := s.providers.For(persona.Provider, persona.Model).Answer(ctx, strings.TrimSpace(msg.Text), items, persona.Voice)
	s.record(ctx, domain.BusinessMetricEventQuestionAnswered, persona.ID, sub.ID, map[string]any{
		"channel": string(msg.Channel),
		"items":   len(items),
	})
	return Reply{Text: answer}, nil
}

// Relevant сужает окно материалов по пересечению с ключевыми словами вопроса.
// Окно не длиннее limit возвращается как есть. Иначе сохраняются совпадения,
// а первые minRelevantItems мест добираются свежими материалами.
func Relevant(question string, items []domain.ContentItem, limit int) []domain.ContentItem {
	if len(items) <= limit {
		return items
	}
	keywords := questionWords(question)
	out := make([]domain.ContentItem, 0, limit)
	for _, it := range items {
		if matchesAny(strings.ToLower(it.Title+" "+it.Body), keywords) || len(out) < minRelevantItems {
			out = append(out, it)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

func questionWords(question string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,;:!?«»\"'()")
		if len([]rune(w)) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (s *Service) subscriber(ctx context.Context, msg Message) (domain.Subscriber, bool, error) {
	sub, err := s.subscribers.GetSubscriber(ctx, msg.PersonaID, msg.Channel, msg.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Subscriber{}, false, nil
	}
	if err != nil {
		return domain.Subscriber{}, false, fmt.Errorf("подписчик: %w", err)
	}
	return sub, true, nil
}

func (s *Service) plan(ctx context.Context, sub domain.Subscriber) (domain.SubscriptionPlan, error) {
	if sub.PlanID == nil {
		return domain.DefaultPlan(), nil
	}
	plan, err := s.subscribers.GetPlan(ctx, *sub.PlanID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultPlan(), nil
	}
	if err != nil {
		return domain.SubscriptionPlan{}, fmt.Errorf("тариф: %w", err)
	}
	return plan, nil
}

func (s *Service) record(ctx context.Context, event string, personaID, subscriberID int64, meta map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:        event,
		PersonaID:    &personaID,
		SubscriberID: &subscriberID,
		Metadata:     meta,
		OccurredAt:   s.clock.Now(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("inbound: не удалось записать бизнес-метрику")
	}
}

// parseCommand отделяет команду от аргументов. Суффикс @bot у команды отбрасывается.
func parseCommand(text string) (command, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, args, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(args)
}

func greeting(sub domain.Subscriber, msg Message) string {
	name := sub.FirstName
	if name == "" {
		name = msg.FirstName
	}
	if name == "" {
		return "Re-bonjour ! Comment puis-je vous aider ?"
	}
	return fmt.Sprintf("Re-bonjour %s ! Comment puis-je vous aider ?", name)
}
