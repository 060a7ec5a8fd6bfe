package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// ErrAlreadyRunning движок уже запущен в этом процессе.
var ErrAlreadyRunning = errors.New("scheduler already running")

// ActionRunner выполняет одно действие персоны.
type ActionRunner interface {
	RunAction(ctx context.Context, p domain.Persona, action domain.Action, local time.Time) error
}

// Engine раз в минуту оценивает триггеры всех активных персон.
type Engine struct {
	personas   domain.PersonaRepo
	marks      domain.ScheduleMarkRepo
	runner     ActionRunner
	clock      domain.Clock
	interval   time.Duration
	fallbackTZ string
	logger     zerolog.Logger

	running atomic.Bool
	locks   sync.Map
	wg      sync.WaitGroup
}

// Options параметры движка.
type Options struct {
	Interval   time.Duration
	FallbackTZ string
	Clock      domain.Clock
}

// NewEngine создаёт движок.
func NewEngine(personas domain.PersonaRepo, marks domain.ScheduleMarkRepo, runner ActionRunner, opts Options, logger zerolog.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.FallbackTZ == "" {
		opts.FallbackTZ = DefaultTimezone
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	return &Engine{
		personas:   personas,
		marks:      marks,
		runner:     runner,
		clock:      opts.Clock,
		interval:   opts.Interval,
		fallbackTZ: opts.FallbackTZ,
		logger:     logger,
	}
}

// Run запускает цикл тиков до отмены ctx и дожидается незавершённых действий.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)
	defer e.wg.Wait()

	e.logger.Info().Dur("interval", e.interval).Msg("scheduler: запущен")

	// первый тик выравнивается по началу минуты
	now := e.clock.Now()
	align := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer align.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-align.C:
	}
	e.Tick(ctx, e.clock.Now())

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("scheduler: остановка, ожидание действий")
			return nil
		case <-ticker.C:
			e.Tick(ctx, e.clock.Now())
		}
	}
}

// Tick оценивает триггеры в момент now и запускает действия персон в отдельных горутинах.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	metrics.SchedulerTicks.Inc()
	now = now.Truncate(time.Minute)

	personas, err := e.personas.ListActivePersonas(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("scheduler: не удалось получить персоны")
		return
	}
	for _, p := range personas {
		actions, local, problems := Due(p, now, e.fallbackTZ)
		for _, problem := range problems {
			e.logger.Warn().Err(problem).Int64("persona", p.ID).Msg("scheduler: некорректное расписание персоны")
		}
		if len(actions) == 0 {
			continue
		}
		e.wg.Add(1)
		go func(p domain.Persona) {
			defer e.wg.Done()
			e.runPersona(ctx, p, actions, local)
		}(p)
	}
}

// Wait дожидается действий, запущенных предыдущими тиками.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) runPersona(ctx context.Context, p domain.Persona, actions []domain.Action, local time.Time) {
	// действия одной персоны выполняются по очереди; повтор отсекает отметка дня
	lock := e.lockFor(p.ID)
	if !lock.TryLock() {
		e.logger.Debug().Int64("persona", p.ID).Msg("scheduler: ждём завершения предыдущих действий персоны")
		lock.Lock()
	}
	defer lock.Unlock()

	day := DayKey(local)
	for _, action := range actions {
		acquired, err := e.marks.AcquireScheduleMark(ctx, p.ID, action, day)
		if err != nil {
			e.logger.Error().Err(err).Int64("persona", p.ID).Str("action", string(action)).Msg("scheduler: не удалось поставить отметку")
			continue
		}
		if !acquired {
			e.logger.Debug().Int64("persona", p.ID).Str("action", string(action)).Str("day", day).Msg("scheduler: действие уже выполнялось сегодня")
			continue
		}
		if err := e.safeRun(ctx, p, action, local); err != nil {
			e.logger.Error().Err(err).Int64("persona", p.ID).Str("action", string(action)).Msg("scheduler: действие завершилось ошибкой")
		}
	}
}

func (e *Engine) safeRun(ctx context.Context, p domain.Persona, action domain.Action, local time.Time) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("stack", string(debug.Stack())).Int64("persona", p.ID).Str("action", string(action)).Msg("scheduler: паника в действии")
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &domain.PersonaActionError{PersonaID: p.ID, Action: action, Err: err}
		}
		metrics.ObservePersonaAction(string(action), start, err)
	}()
	return e.runner.RunAction(ctx, p, action, local)
}

func (e *Engine) lockFor(personaID int64) *sync.Mutex {
	lock, _ := e.locks.LoadOrStore(personaID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
