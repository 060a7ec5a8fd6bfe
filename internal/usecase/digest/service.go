package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/usecase/schedule"
)

// ErrNoSummary у персоны нет сводки для действия.
var ErrNoSummary = errors.New("no summary available")

// Service строит и рассылает сводки персон.
type Service struct {
	personas   domain.PersonaRepo
	content    domain.ContentRepo
	summaries  domain.SummaryRepo
	providers  domain.SummarizerRegistry
	synth      domain.Synthesizer
	assets     domain.AssetStore
	dispatcher domain.Dispatcher
	ranker     Ranker
	events     domain.BusinessMetricRepo
	clock      domain.Clock
	lookback   time.Duration
	logger     zerolog.Logger
}

// Deps зависимости сервиса.
type Deps struct {
	Personas   domain.PersonaRepo
	Content    domain.ContentRepo
	Summaries  domain.SummaryRepo
	Providers  domain.SummarizerRegistry
	Synth      domain.Synthesizer
	Assets     domain.AssetStore
	Dispatcher domain.Dispatcher
	Ranker     Ranker
	Events     domain.BusinessMetricRepo
	Clock      domain.Clock
}

// Ranker упорядочивает материалы окна перед суммаризацией.
type Ranker interface {
	Rank(items []domain.ContentItem, now time.Time) []domain.ContentItem
}

// NewService создаёт сервис. Synth, Assets и Ranker необязательны.
func NewService(deps Deps, lookback time.Duration, logger zerolog.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Service{
		personas:   deps.Personas,
		content:    deps.Content,
		summaries:  deps.Summaries,
		providers:  deps.Providers,
		synth:      deps.Synth,
		assets:     deps.Assets,
		dispatcher: deps.Dispatcher,
		ranker:     deps.Ranker,
		events:     deps.Events,
		clock:      deps.Clock,
		lookback:   lookback,
		logger:     logger,
	}
}

// Summarize строит сводку по материалам за окно lookback. При пустом окне сводка не создаётся
// и возвращается created == false.
func (s *Service) Summarize(ctx context.Context, p domain.Persona, local time.Time) (summary domain.DeliverySummary, created bool, err error) {
	now := s.clock.Now()
	items, err := s.content.ListContentSince(ctx, p.ID, now.Add(-s.lookback))
	if err != nil {
		return domain.DeliverySummary{}, false, fmt.Errorf("материалы персоны: %w", err)
	}
	if len(items) == 0 {
		s.logger.Info().Int64("persona", p.ID).Msg("digest: нет новых материалов, сводка не создаётся")
		return domain.DeliverySummary{}, false, nil
	}

	selected := items
	if s.ranker != nil {
		selected = s.ranker.Rank(items, now)
	}
	body := s.providers.For(p.Provider, p.Model).Summarize(ctx, selected, p.Voice)
	text := FormatSummary(p.Name, local, body)

	var audioPath string
	if p.Audio.Enabled {
		audioPath = s.synthesize(ctx, p, body, now)
	}

	summary, err = s.summaries.CreateSummary(ctx, domain.DeliverySummary{
		PersonaID:  p.ID,
		Text:       text,
		AudioPath:  audioPath,
		ItemsCount: len(items),
		CreatedAt:  now,
	})
	if err != nil {
		return domain.DeliverySummary{}, false, fmt.Errorf("сохранение сводки: %w", err)
	}
	if err := s.personas.TouchLastSummary(ctx, p.ID, now); err != nil {
		return summary, true, fmt.Errorf("отметка last_summary_at: %w", err)
	}
	s.record(ctx, domain.BusinessMetricEventSummaryCreated, p.ID, map[string]any{
		"summary_id": summary.ID,
		"items":      len(items),
		"audio":      audioPath != "",
	})
	s.logger.Info().Int64("persona", p.ID).Int64("summary", summary.ID).Int("items", len(items)).Bool("audio", audioPath != "").Msg("digest: сводка создана")
	return summary, true, nil
}

// Send рассылает неотправленную сводку текущего локального дня. Если её нет, ничего не происходит.
func (s *Service) Send(ctx context.Context, p domain.Persona, local time.Time) (domain.DeliverySummary, domain.DeliveryReport, bool, error) {
	from, to := schedule.LocalDay(local)
	summary, err := s.summaries.FindUnsentSummary(ctx, p.ID, from, to)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info().Int64("persona", p.ID).Msg("digest: нет неотправленной сводки за сегодня")
		return domain.DeliverySummary{}, domain.DeliveryReport{}, false, nil
	}
	if err != nil {
		return domain.DeliverySummary{}, domain.DeliveryReport{}, false, fmt.Errorf("поиск сводки: %w", err)
	}

	report := s.dispatcher.Deliver(ctx, p, summary.Text, summary.AudioPath)
	now := s.clock.Now()
	if err := s.summaries.MarkSummarySent(ctx, summary.ID, report.Delivered, now); err != nil {
		return summary, report, true, fmt.Errorf("отметка отправки: %w", err)
	}
	summary.SentAt = &now
	summary.SentCount = report.Delivered

	channels := make(map[string]bool, len(report.Channels))
	for kind, ok := range report.Channels {
		channels[string(kind)] = ok
	}
	s.record(ctx, domain.BusinessMetricEventSummarySent, p.ID, map[string]any{
		"summary_id": summary.ID,
		"delivered":  report.Delivered,
		"channels":   channels,
	})
	s.logger.Info().Int64("persona", p.ID).Int64("summary", summary.ID).Int("delivered", report.Delivered).Msg("digest: сводка отправлена")
	return summary, report, true, nil
}

// AttachAudio озвучивает последнюю сводку, если у неё ещё нет аудио.
func (s *Service) AttachAudio(ctx context.Context, p domain.Persona) (domain.DeliverySummary, error) {
	summary, err := s.summaries.LatestSummary(ctx, p.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DeliverySummary{}, ErrNoSummary
	}
	if err != nil {
		return domain.DeliverySummary{}, fmt.Errorf("последняя сводка: %w", err)
	}
	if summary.AudioPath != "" {
		return summary, nil
	}
	if s.synth == nil || s.assets == nil {
		return summary, fmt.Errorf("озвучка: %w", domain.ErrNotConfigured)
	}

	data, err := s.synth.Synthesize(ctx, summary.Text, p.Audio.VoiceID)
	if err != nil {
		return summary, fmt.Errorf("озвучка: %w", err)
	}
	path, err := s.assets.Persist(ctx, data, AudioFileName(p.ID, s.clock.Now()))
	if err != nil {
		return summary, fmt.Errorf("сохранение аудио: %w", err)
	}
	if path == "" {
		return summary, errors.New("озвучка: пустой ответ синтеза")
	}
	if err := s.summaries.AttachSummaryAudio(ctx, summary.ID, path); err != nil {
		return summary, fmt.Errorf("привязка аудио: %w", err)
	}
	summary.AudioPath = path
	return summary, nil
}

// synthesize не прерывает создание сводки: при ошибке сводка сохраняется без аудио.
func (s *Service) synthesize(ctx context.Context, p domain.Persona, body string, now time.Time) string {
	if s.synth == nil || s.assets == nil {
		return ""
	}
	data, err := s.synth.Synthesize(ctx, body, p.Audio.VoiceID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("persona", p.ID).Msg("digest: озвучка недоступна")
		return ""
	}
	path, err := s.assets.Persist(ctx, data, AudioFileName(p.ID, now))
	if err != nil {
		s.logger.Warn().Err(err).Int64("persona", p.ID).Msg("digest: не удалось сохранить аудио")
		return ""
	}
	return path
}

func (s *Service) record(ctx context.Context, event string, personaID int64, meta map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      event,
		PersonaID:  &personaID,
		Metadata:   meta,
		OccurredAt: s.clock.Now(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("digest: не удалось записать бизнес-метрику")
	}
}
