package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured провайдер или канал не настроен, вызывающий переходит на запасной вариант.
	ErrNotConfigured = errors.New("not configured")
	// ErrTransient временная сетевая ошибка внешнего сервиса.
	ErrTransient = errors.New("transient network error")
	// ErrDuplicate материал с таким URL уже сохранён для персоны.
	ErrDuplicate = errors.New("duplicate content")
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrBotNotRunning у персоны нет живого бота.
	ErrBotNotRunning = errors.New("bot is not running")
)

// Action действие персоны, которое запускает планировщик или администратор.
type Action string

const (
	ActionFetch     Action = "fetch"
	ActionSummarize Action = "summary"
	ActionSend      Action = "send"
	ActionAudio     Action = "audio"
)

// ParseAction проверяет имя действия.
func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionFetch, ActionSummarize, ActionSend, ActionAudio:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

// PersonaActionError ошибка действия конкретной персоны.
type PersonaActionError struct {
	PersonaID int64
	Action    Action
	Err       error
}

func (e *PersonaActionError) Error() string {
	return fmt.Sprintf("persona %d: %s: %v", e.PersonaID, e.Action, e.Err)
}

func (e *PersonaActionError) Unwrap() error {
	return e.Err
}
