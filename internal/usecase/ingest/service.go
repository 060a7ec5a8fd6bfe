package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// Report итог загрузки источников персоны.
type Report struct {
	Sources    int `json:"sources"`
	Failed     int `json:"failed"`
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// Service загружает источники персоны и сохраняет новые материалы без дублей.
type Service struct {
	sources   domain.SourceRepo
	content   domain.ContentRepo
	fetcher   domain.Fetcher
	providers domain.SummarizerRegistry
	events    domain.BusinessMetricRepo
	clock     domain.Clock
	logger    zerolog.Logger
}

// NewService создаёт сервис.
func NewService(sources domain.SourceRepo, content domain.ContentRepo, fetcher domain.Fetcher, providers domain.SummarizerRegistry, events domain.BusinessMetricRepo, clock domain.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Service{sources: sources, content: content, fetcher: fetcher, providers: providers, events: events, clock: clock, logger: logger}
}

// FetchPersona опрашивает все активные источники. Ошибка источника записывается в его учёт
// и не прерывает остальные.
func (s *Service) FetchPersona(ctx context.Context, p domain.Persona) (Report, error) {
	sources, err := s.sources.ListActiveSources(ctx, p.ID)
	if err != nil {
		return Report{}, fmt.Errorf("список источников: %w", err)
	}

	var report Report
	summarizer := s.providers.For(p.Provider, p.Model)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sources++
		drafts, err := s.fetcher.Fetch(ctx, src, Since(src))
		if err != nil {
			report.Failed++
			s.logger.Warn().Err(err).Int64("persona", p.ID).Int64("source", src.ID).Str("kind", string(src.Kind)).Msg("ingest: источник недоступен")
			if markErr := s.sources.MarkSourceFailed(ctx, src.ID, s.clock.Now(), err.Error()); markErr != nil {
				s.logger.Error().Err(markErr).Int64("source", src.ID).Msg("ingest: не удалось записать ошибку источника")
			}
			continue
		}
		report.Fetched += len(drafts)

		inserted, duplicates := s.Ingest(ctx, p, &src, summarizer, drafts)
		report.Inserted += inserted
		report.Duplicates += duplicates

		if err := s.sources.MarkSourceFetched(ctx, src.ID, s.clock.Now()); err != nil {
			s.logger.Error().Err(err).Int64("source", src.ID).Msg("ingest: не удалось обновить учёт источника")
		}
	}

	if report.Inserted > 0 && s.events != nil {
		pid := p.ID
		if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:      domain.BusinessMetricEventItemsIngested,
			PersonaID:  &pid,
			Metadata:   map[string]any{"inserted": report.Inserted, "duplicates": report.Duplicates, "failed_sources": report.Failed},
			OccurredAt: s.clock.Now(),
		}); err != nil {
			s.logger.Warn().Err(err).Msg("ingest: не удалось записать бизнес-метрику")
		}
	}
	s.logger.Info().Int64("persona", p.ID).Interface("report", report).Msg("ingest: загрузка завершена")
	return report, nil
}

// Since возвращает нижнюю границу инкрементальной загрузки. Ленты и видеоканалы отдают
// надёжные даты публикации и читаются с момента прошлой загрузки, остальные источники
// каждый раз отдают полное окно и полагаются на дедупликацию по URL.
func Since(src domain.Source) *time.Time {
	switch src.Kind {
	case domain.SourceRSS, domain.SourceYouTube:
		return src.LastFetchedAt
	default:
		return nil
	}
}

// Ingest сохраняет черновики. Черновик с уже известным URL пропускается, без URL сохраняется всегда.
func (s *Service) Ingest(ctx context.Context, p domain.Persona, src *domain.Source, summarizer domain.Summarizer, drafts []domain.ContentDraft) (inserted, duplicates int) {
	for _, d := range drafts {
		url := strings.TrimSpace(d.URL)
		if url != "" {
			exists, err := s.content.ContentExists(ctx, p.ID, url)
			if err != nil {
				metrics.IngestItems.WithLabelValues("failed").Inc()
				s.logger.Error().Err(err).Int64("persona", p.ID).Str("url", url).Msg("ingest: проверка дубля")
				continue
			}
			if exists {
				duplicates++
				metrics.IngestItems.WithLabelValues("duplicate").Inc()
				continue
			}
		}

		item := domain.ContentItem{
			PersonaID:   p.ID,
			Title:       strings.TrimSpace(d.Title),
			Body:        strings.TrimSpace(d.Body),
			URL:         url,
			Author:      d.Author,
			PublishedAt: d.PublishedAt,
			FetchedAt:   s.clock.Now(),
			Origin:      d.Origin,
		}
		if src != nil {
			id := src.ID
			item.SourceID = &id
			if item.Origin == "" {
				item.Origin = src.Label()
			}
		}
		item.Keywords = summarizer.ExtractKeywords(ctx, strings.TrimSpace(item.Title+"\n"+item.Body))

		if _, err := s.content.InsertContent(ctx, item); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				duplicates++
				metrics.IngestItems.WithLabelValues("duplicate").Inc()
				continue
			}
			metrics.IngestItems.WithLabelValues("failed").Inc()
			s.logger.Error().Err(err).Int64("persona", p.ID).Str("url", url).Msg("ingest: не удалось сохранить материал")
			continue
		}
		inserted++
		metrics.IngestItems.WithLabelValues("inserted").Inc()
	}
	return inserted, duplicates
}
