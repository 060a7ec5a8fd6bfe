package domain

import (
	"context"
	"time"
)

// ActionJob задача на ручной запуск действия персоны.
type ActionJob struct {
	ID          string    `json:"job_id"`
	PersonaID   int64     `json:"persona_id"`
	Action      Action    `json:"action"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ActionResult структурированный итог ручного действия для админки.
type ActionResult struct {
	JobID    string         `json:"job_id,omitempty"`
	Action   Action         `json:"action"`
	OK       bool           `json:"ok"`
	Step     string         `json:"step,omitempty"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Finished time.Time      `json:"finished_at"`
}

// ActionQueue очередь ручных действий.
type ActionQueue interface {
	Enqueue(ctx context.Context, job ActionJob) error
	Receive(ctx context.Context) (ActionJob, AckFunc, error)
}

// AckFunc подтверждает обработку задачи или возвращает её в очередь.
type AckFunc func(success bool) error

// ScheduleMarkRepo хранит отметки о выполненных действиях расписания.
type ScheduleMarkRepo interface {
	// AcquireScheduleMark создаёт отметку для (персона, действие, день) и возвращает true,
	// если её ещё не было. При конфликте возвращает false без ошибки.
	AcquireScheduleMark(ctx context.Context, personaID int64, action Action, day string) (bool, error)
}
