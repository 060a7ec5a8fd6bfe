package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsroom/internal/domain"
)

func TestMemoryAcquireScheduleMarkOncePerDay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.AcquireScheduleMark(ctx, 1, domain.ActionFetch, "2024-01-15")
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v; want true, nil", ok, err)
	}
	ok, err = m.AcquireScheduleMark(ctx, 1, domain.ActionFetch, "2024-01-15")
	if err != nil || ok {
		t.Fatalf("second acquire = %v, %v; want false, nil", ok, err)
	}
	ok, _ = m.AcquireScheduleMark(ctx, 1, domain.ActionSend, "2024-01-15")
	if !ok {
		t.Fatalf("other action must acquire its own mark")
	}
	ok, _ = m.AcquireScheduleMark(ctx, 1, domain.ActionFetch, "2024-01-16")
	if !ok {
		t.Fatalf("next day must acquire a new mark")
	}
}

func TestMemoryGetExpires(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v; want v", got, err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}
