package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"newsroom/internal/domain"
)

const (
	DefaultFetchTime   = "02:00"
	DefaultSummaryTime = "08:00"
	DefaultSendTime    = "08:00"
	DefaultTimezone    = "Europe/Paris"
	dayLayout          = "2006-01-02"
)

var (
	// ErrInvalidTimezone часовой пояс персоны не распознан.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrInvalidClock время триггера не в формате HH:MM.
	ErrInvalidClock = errors.New("invalid trigger time")
)

// ShouldFetch сообщает, наступило ли время загрузки для персоны в момент instant.
func ShouldFetch(p domain.Persona, instant time.Time) bool {
	return fires(p.FetchTime, DefaultFetchTime, LocalTime(p, instant, DefaultTimezone))
}

// ShouldSummarize сообщает, наступило ли время сводки.
func ShouldSummarize(p domain.Persona, instant time.Time) bool {
	return fires(p.SummaryTime, DefaultSummaryTime, LocalTime(p, instant, DefaultTimezone))
}

// ShouldSend сообщает, наступило ли время рассылки.
func ShouldSend(p domain.Persona, instant time.Time) bool {
	return fires(p.SendTime, DefaultSendTime, LocalTime(p, instant, DefaultTimezone))
}

// Due возвращает действия, которые нужно запустить в момент instant, в порядке
// fetch, summary, send. problems описывает некорректные настройки персоны.
func Due(p domain.Persona, instant time.Time, fallbackTZ string) (actions []domain.Action, local time.Time, problems []error) {
	loc, err := ResolveLocation(p.Timezone, fallbackTZ)
	if err != nil {
		problems = append(problems, err)
	}
	local = instant.In(loc)

	triggers := []struct {
		action  domain.Action
		raw     string
		initial string
	}{
		{domain.ActionFetch, p.FetchTime, DefaultFetchTime},
		{domain.ActionSummarize, p.SummaryTime, DefaultSummaryTime},
		{domain.ActionSend, p.SendTime, DefaultSendTime},
	}
	for _, t := range triggers {
		hour, minute, err := triggerClock(t.raw, t.initial)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", t.action, err))
			continue
		}
		if local.Hour() == hour && local.Minute() == minute {
			actions = append(actions, t.action)
		}
	}
	return actions, local, problems
}

// LocalTime переводит instant в часовой пояс персоны.
func LocalTime(p domain.Persona, instant time.Time, fallbackTZ string) time.Time {
	loc, _ := ResolveLocation(p.Timezone, fallbackTZ)
	return instant.In(loc)
}

// ResolveLocation загружает часовой пояс. При ошибке возвращает fallback и ErrInvalidTimezone.
func ResolveLocation(tz, fallbackTZ string) (*time.Location, error) {
	if strings.TrimSpace(tz) != "" {
		if name, err := normalizeTimezone(tz); err == nil {
			if loc, err := time.LoadLocation(name); err == nil {
				return loc, nil
			}
		}
	}
	fallback := fallbackLocation(fallbackTZ)
	if strings.TrimSpace(tz) == "" {
		return fallback, nil
	}
	return fallback, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
}

func fallbackLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDay возвращает границы календарного дня, в который попадает local.
func LocalDay(local time.Time) (from, to time.Time) {
	from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return from, from.AddDate(0, 0, 1)
}

// DayKey ключ дня для отметок расписания.
func DayKey(local time.Time) string {
	return local.Format(dayLayout)
}

// ParseDay разбирает YYYY-MM-DD в часовом поясе loc.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dayLayout, strings.TrimSpace(raw), loc)
}

func fires(raw, initial string, local time.Time) bool {
	hour, minute, err := triggerClock(raw, initial)
	if err != nil {
		return false
	}
	return local.Hour() == hour && local.Minute() == minute
}

func triggerClock(raw, initial string) (int, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = initial
	}
	return ParseClock(raw)
}

// ParseClock разбирает строку HH:MM.
func ParseClock(raw string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return t.Hour(), t.Minute(), nil
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	parts := strings.Split(strings.ToLower(candidate), "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
