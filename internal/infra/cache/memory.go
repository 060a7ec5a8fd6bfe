package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"newsroom/internal/domain"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory держит значения в памяти процесса. Используется, когда Redis не настроен.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var (
	_ domain.Cache            = (*Memory)(nil)
	_ domain.ScheduleMarkRepo = (*Memory)(nil)
)

// NewMemory создаёт кэш в памяти.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// AcquireScheduleMark выставляет отметку, если её ещё нет.
func (m *Memory) AcquireScheduleMark(_ context.Context, personaID int64, action domain.Action, day string) (bool, error) {
	key := fmt.Sprintf("mark:%d:%s:%s", personaID, action, day)
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && m.now().Before(e.expires) {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: []byte("1"), expires: m.now().Add(markTTL)}
	return true, nil
}

// Set задаёт значение.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := append([]byte(nil), value...)
	m.entries[key] = memoryEntry{value: clone, expires: m.now().Add(ttl)}
	return nil
}

// Get возвращает значение.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}
