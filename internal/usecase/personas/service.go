package personas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/usecase/ingest"
	"newsroom/internal/usecase/schedule"
)

// ResultTTL срок хранения итогов ручных действий.
const ResultTTL = time.Hour

// ErrQueueDisabled очередь ручных действий не настроена.
var ErrQueueDisabled = errors.New("action queue is not configured")

// Fetcher собирает материалы персоны.
type Fetcher interface {
	FetchPersona(ctx context.Context, p domain.Persona) (ingest.Report, error)
}

// Digester строит, рассылает и озвучивает сводки.
type Digester interface {
	Summarize(ctx context.Context, p domain.Persona, local time.Time) (domain.DeliverySummary, bool, error)
	Send(ctx context.Context, p domain.Persona, local time.Time) (domain.DeliverySummary, domain.DeliveryReport, bool, error)
	AttachAudio(ctx context.Context, p domain.Persona) (domain.DeliverySummary, error)
}

// Bots останавливает слушателя персоны.
type Bots interface {
	Stop(personaID int64)
}

// Service связывает расписание, ручные действия и жизненный цикл персоны.
type Service struct {
	personas   domain.PersonaRepo
	fetcher    Fetcher
	digest     Digester
	bots       Bots
	queue      domain.ActionQueue
	results    domain.Cache
	events     domain.BusinessMetricRepo
	clock      domain.Clock
	fallbackTZ string
	logger     zerolog.Logger
}

// Deps зависимости сервиса. Queue и Results необязательны.
type Deps struct {
	Personas domain.PersonaRepo
	Fetcher  Fetcher
	Digest   Digester
	Bots     Bots
	Queue    domain.ActionQueue
	Results  domain.Cache
	Events   domain.BusinessMetricRepo
	Clock    domain.Clock
}

var _ schedule.ActionRunner = (*Service)(nil)

// NewService создаёт сервис персон.
func NewService(deps Deps, fallbackTZ string, logger zerolog.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	return &Service{
		personas:   deps.Personas,
		fetcher:    deps.Fetcher,
		digest:     deps.Digest,
		bots:       deps.Bots,
		queue:      deps.Queue,
		results:    deps.Results,
		events:     deps.Events,
		clock:      deps.Clock,
		fallbackTZ: fallbackTZ,
		logger:     logger,
	}
}

// RunAction выполняет действие по расписанию.
func (s *Service) RunAction(ctx context.Context, p domain.Persona, action domain.Action, local time.Time) error {
	_, err := s.run(ctx, p, action, local)
	return err
}

// RunManual выполняет действие по запросу администратора. Ошибки не выходят
// за пределы метода и описываются в ActionResult.
func (s *Service) RunManual(ctx context.Context, personaID int64, action domain.Action) domain.ActionResult {
	result := domain.ActionResult{Action: action}
	p, err := s.personas.GetPersona(ctx, personaID)
	if err != nil {
		result.Step = "persona"
		result.Message = "Journaliste non trouvé"
		if !errors.Is(err, domain.ErrNotFound) {
			result.Message = "Impossible de charger le journaliste"
			s.logger.Error().Err(err).Int64("persona", personaID).Msg("personas: персона недоступна")
		}
		result.Finished = s.clock.Now()
		return result
	}

	s.record(ctx, p.ID, action)
	local := schedule.LocalTime(p, s.clock.Now(), s.fallbackTZ)
	res, err := s.run(ctx, p, action, local)
	res.Action = action
	res.Finished = s.clock.Now()
	if err != nil {
		res.OK = false
		if res.Step == "" {
			res.Step = string(action)
		}
		res.Message = err.Error()
		s.logger.Error().Err(err).Int64("persona", p.ID).Str("action", string(action)).Msg("personas: ручное действие не выполнено")
		return res
	}
	res.OK = true
	return res
}

func (s *Service) run(ctx context.Context, p domain.Persona, action domain.Action, local time.Time) (domain.ActionResult, error) {
	var res domain.ActionResult
	switch action {
	case domain.ActionFetch:
		report, err := s.fetcher.FetchPersona(ctx, p)
		res.Step = "fetch"
		res.Details = map[string]any{
			"sources":    report.Sources,
			"failed":     report.Failed,
			"fetched":    report.Fetched,
			"inserted":   report.Inserted,
			"duplicates": report.Duplicates,
		}
		res.Message = fmt.Sprintf("%d nouveaux articles sur %d récupérés", report.Inserted, report.Fetched)
		return res, err

	case domain.ActionSummarize:
		summary, created, err := s.digest.Summarize(ctx, p, local)
		res.Step = "summary"
		if err != nil {
			return res, err
		}
		if !created {
			res.Message = "Aucun nouvel article, pas de résumé"
			return res, nil
		}
		res.Message = "Résumé créé"
		res.Details = map[string]any{"summary_id": summary.ID, "items": summary.ItemsCount, "audio": summary.AudioPath != ""}
		return res, nil

	case domain.ActionSend:
		summary, report, sent, err := s.digest.Send(ctx, p, local)
		res.Step = "send"
		if err != nil {
			return res, err
		}
		if !sent {
			res.Message = "Aucun résumé à envoyer aujourd'hui"
			return res, nil
		}
		channels := make(map[string]bool, len(report.Channels))
		for kind, ok := range report.Channels {
			channels[string(kind)] = ok
		}
		res.Message = fmt.Sprintf("Résumé envoyé à %d destinataires", report.Delivered)
		res.Details = map[string]any{"summary_id": summary.ID, "sent_count": report.Delivered, "channels": channels}
		return res, nil

	case domain.ActionAudio:
		summary, err := s.digest.AttachAudio(ctx, p)
		res.Step = "audio"
		if err != nil {
			return res, err
		}
		res.Message = "Audio généré"
		res.Details = map[string]any{"summary_id": summary.ID, "audio_path": summary.AudioPath}
		return res, nil
	}
	return res, fmt.Errorf("unknown action %q", action)
}

// Delete останавливает бота персоны и удаляет её вместе со всеми данными.
func (s *Service) Delete(ctx context.Context, personaID int64) error {
	if s.bots != nil {
		s.bots.Stop(personaID)
	}
	if err := s.personas.DeletePersona(ctx, personaID); err != nil {
		return fmt.Errorf("удаление персоны %d: %w", personaID, err)
	}
	s.logger.Info().Int64("persona", personaID).Msg("personas: персона удалена")
	return nil
}

// Submit ставит ручное действие в очередь и возвращает задачу с её идентификатором.
func (s *Service) Submit(ctx context.Context, personaID int64, action domain.Action, requestedBy string) (domain.ActionJob, error) {
	if s.queue == nil {
		return domain.ActionJob{}, ErrQueueDisabled
	}
	job := domain.ActionJob{
		ID:          uuid.NewString(),
		PersonaID:   personaID,
		Action:      action,
		RequestedBy: strings.TrimSpace(requestedBy),
		RequestedAt: s.clock.Now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.ActionJob{}, fmt.Errorf("постановка в очередь: %w", err)
	}
	return job, nil
}

// Worker обрабатывает задачи очереди до отмены контекста.
func (s *Service) Worker(ctx context.Context) error {
	if s.queue == nil {
		return ErrQueueDisabled
	}
	for {
		job, ack, err := s.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Msg("personas: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		result := s.RunManual(ctx, job.PersonaID, job.Action)
		result.JobID = job.ID
		if err := s.storeResult(ctx, result); err != nil {
			s.logger.Error().Err(err).Str("job", job.ID).Msg("personas: не удалось сохранить итог")
		}
		if err := ack(true); err != nil {
			s.logger.Error().Err(err).Str("job", job.ID).Msg("personas: не удалось подтвердить задачу")
		}
		s.logger.Info().Str("job", job.ID).Int64("persona", job.PersonaID).Str("action", string(job.Action)).Bool("ok", result.OK).Msg("personas: задача обработана")
	}
}

// Result возвращает итог задачи. ErrNotFound, если задача ещё не завершена или итог истёк.
func (s *Service) Result(ctx context.Context, jobID string) (domain.ActionResult, error) {
	if s.results == nil {
		return domain.ActionResult{}, domain.ErrNotFound
	}
	raw, err := s.results.Get(ctx, resultKey(jobID))
	if err != nil {
		return domain.ActionResult{}, err
	}
	var result domain.ActionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.ActionResult{}, fmt.Errorf("итог задачи %s: %w", jobID, err)
	}
	return result, nil
}

func (s *Service) storeResult(ctx context.Context, result domain.ActionResult) error {
	if s.results == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.results.Set(ctx, resultKey(result.JobID), raw, ResultTTL)
}

func (s *Service) record(ctx context.Context, personaID int64, action domain.Action) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      domain.BusinessMetricEventActionRequested,
		PersonaID:  &personaID,
		Metadata:   map[string]any{"action": string(action)},
		OccurredAt: s.clock.Now(),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("personas: не удалось записать бизнес-метрику")
	}
}

func resultKey(jobID string) string {
	return "action_result:" + jobID
}
