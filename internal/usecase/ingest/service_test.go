package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type memoryStore struct {
	mu      sync.Mutex
	sources []domain.Source
	items   []domain.ContentItem
	fetched map[int64]int
	failed  map[int64]string
	events  []domain.BusinessMetric
}

func newMemoryStore(sources ...domain.Source) *memoryStore {
	return &memoryStore{sources: sources, fetched: map[int64]int{}, failed: map[int64]string{}}
}

func (m *memoryStore) ListActiveSources(_ context.Context, personaID int64) ([]domain.Source, error) {
	var out []domain.Source
	for _, s := range m.sources {
		if s.PersonaID == personaID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) MarkSourceFetched(_ context.Context, id int64, _ time.Time) error {
	m.fetched[id]++
	return nil
}

func (m *memoryStore) MarkSourceFailed(_ context.Context, id int64, _ time.Time, reason string) error {
	m.failed[id] = reason
	return nil
}

func (m *memoryStore) ContentExists(_ context.Context, personaID int64, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.PersonaID == personaID && it.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) InsertContent(_ context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if item.URL != "" && it.PersonaID == item.PersonaID && it.URL == item.URL {
			return domain.ContentItem{}, domain.ErrDuplicate
		}
	}
	item.ID = int64(len(m.items) + 1)
	m.items = append(m.items, item)
	return item, nil
}

func (m *memoryStore) ListContentSince(context.Context, int64, time.Time) ([]domain.ContentItem, error) {
	return m.items, nil
}

func (m *memoryStore) ListRecentContent(context.Context, int64, int) ([]domain.ContentItem, error) {
	return m.items, nil
}

func (m *memoryStore) ListContentBetween(context.Context, int64, time.Time, time.Time, int) ([]domain.ContentItem, error) {
	return m.items, nil
}

func (m *memoryStore) RecordBusinessMetric(_ context.Context, metric domain.BusinessMetric) error {
	m.events = append(m.events, metric)
	return nil
}

type scriptedFetcher struct {
	drafts map[int64][]domain.ContentDraft
	errs   map[int64]error
	since  map[int64]*time.Time
}

func (f scriptedFetcher) Fetch(_ context.Context, src domain.Source, since *time.Time) ([]domain.ContentDraft, error) {
	if f.since != nil {
		f.since[src.ID] = since
	}
	if err := f.errs[src.ID]; err != nil {
		return nil, err
	}
	return f.drafts[src.ID], nil
}

type keywordSummarizer struct {
	inputs []string
}

func (k *keywordSummarizer) Summarize(context.Context, []domain.ContentItem, domain.Voice) string {
	return ""
}
func (k *keywordSummarizer) Answer(context.Context, string, []domain.ContentItem, domain.Voice) string {
	return ""
}
func (k *keywordSummarizer) ExtractKeywords(_ context.Context, text string) []string {
	k.inputs = append(k.inputs, text)
	return []string{"mot"}
}
func (k *keywordSummarizer) Available() bool { return true }

type oneProvider struct{ s domain.Summarizer }

func (o oneProvider) For(string, string) domain.Summarizer { return o.s }

func newService(store *memoryStore, fetcher domain.Fetcher, sum *keywordSummarizer) *Service {
	clock := fixedClock{now: time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)}
	return NewService(store, store, fetcher, oneProvider{s: sum}, store, clock, zerolog.Nop())
}

func TestFetchPersonaDedupsAndRecordsSources(t *testing.T) {
	store := newMemoryStore(
		domain.Source{ID: 1, PersonaID: 7, Kind: domain.SourceRSS, Name: "Le Fil", IsActive: true},
		domain.Source{ID: 2, PersonaID: 7, Kind: domain.SourceWebsite, IsActive: true},
		domain.Source{ID: 3, PersonaID: 7, Kind: domain.SourceRSS, IsActive: false},
	)
	draft := domain.ContentDraft{Title: "Titre", Body: "Corps", URL: "https://example.com/a"}
	fetcher := scriptedFetcher{
		drafts: map[int64][]domain.ContentDraft{1: {draft, draft, {Title: "Sans lien"}, {Title: "Sans lien"}}},
		errs:   map[int64]error{2: errors.New("timeout")},
	}
	sum := &keywordSummarizer{}
	svc := newService(store, fetcher, sum)

	report, err := svc.FetchPersona(context.Background(), domain.Persona{ID: 7})
	if err != nil {
		t.Fatalf("FetchPersona: %v", err)
	}
	want := Report{Sources: 2, Failed: 1, Fetched: 4, Inserted: 3, Duplicates: 1}
	if report != want {
		t.Fatalf("unexpected report: %+v, want %+v", report, want)
	}
	if len(store.items) != 3 {
		t.Fatalf("expected 3 stored items, got %d", len(store.items))
	}
	first := store.items[0]
	if first.Origin != "Le Fil" || first.SourceID == nil || *first.SourceID != 1 {
		t.Fatalf("unexpected item provenance: %+v", first)
	}
	if len(first.Keywords) != 1 || sum.inputs[0] != "Titre\nCorps" {
		t.Fatalf("keywords must come from title and body, got %v / %q", first.Keywords, sum.inputs[0])
	}
	if store.fetched[1] != 1 || store.fetched[2] != 0 {
		t.Fatalf("unexpected fetched stamps: %v", store.fetched)
	}
	if store.failed[2] != "timeout" {
		t.Fatalf("failure must be recorded on the source, got %v", store.failed)
	}
	if len(store.events) != 1 || store.events[0].Event != domain.BusinessMetricEventItemsIngested {
		t.Fatalf("unexpected events: %+v", store.events)
	}
}

func TestFetchPersonaPassesSinceForFeeds(t *testing.T) {
	last := time.Date(2026, 10, 14, 2, 0, 0, 0, time.UTC)
	store := newMemoryStore(
		domain.Source{ID: 1, PersonaID: 7, Kind: domain.SourceRSS, IsActive: true, LastFetchedAt: &last},
		domain.Source{ID: 2, PersonaID: 7, Kind: domain.SourceYouTube, IsActive: true, LastFetchedAt: &last},
		domain.Source{ID: 3, PersonaID: 7, Kind: domain.SourceWebsite, IsActive: true, LastFetchedAt: &last},
		domain.Source{ID: 4, PersonaID: 7, Kind: domain.SourceRSS, IsActive: true},
	)
	fetcher := scriptedFetcher{since: map[int64]*time.Time{}}
	svc := newService(store, fetcher, &keywordSummarizer{})

	if _, err := svc.FetchPersona(context.Background(), domain.Persona{ID: 7}); err != nil {
		t.Fatalf("FetchPersona: %v", err)
	}
	for _, id := range []int64{1, 2} {
		if got := fetcher.since[id]; got == nil || !got.Equal(last) {
			t.Fatalf("source %d must be fetched since its last fetch, got %v", id, got)
		}
	}
	for _, id := range []int64{3, 4} {
		if got, ok := fetcher.since[id]; !ok || got != nil {
			t.Fatalf("source %d must use the full window, got %v (called=%v)", id, got, ok)
		}
	}
}

func TestIngestSameDraftTwiceStoresOne(t *testing.T) {
	store := newMemoryStore()
	svc := newService(store, scriptedFetcher{}, &keywordSummarizer{})
	draft := domain.ContentDraft{Title: "A", URL: "https://example.com/a"}

	p := domain.Persona{ID: 1}
	in1, dup1 := svc.Ingest(context.Background(), p, nil, &keywordSummarizer{}, []domain.ContentDraft{draft})
	in2, dup2 := svc.Ingest(context.Background(), p, nil, &keywordSummarizer{}, []domain.ContentDraft{draft})
	if in1 != 1 || dup1 != 0 || in2 != 0 || dup2 != 1 {
		t.Fatalf("unexpected counters: %d/%d then %d/%d", in1, dup1, in2, dup2)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected a single stored item, got %d", len(store.items))
	}
}

type racingStore struct {
	*memoryStore
}

func (r racingStore) ContentExists(context.Context, int64, string) (bool, error) {
	return false, nil
}

func TestIngestConcurrentDuplicateIsSkip(t *testing.T) {
	base := newMemoryStore()
	store := racingStore{memoryStore: base}
	svc := NewService(base, store, scriptedFetcher{}, oneProvider{s: &keywordSummarizer{}}, nil, nil, zerolog.Nop())
	draft := domain.ContentDraft{Title: "A", URL: "https://example.com/a"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Ingest(context.Background(), domain.Persona{ID: 1}, nil, &keywordSummarizer{}, []domain.ContentDraft{draft})
		}()
	}
	wg.Wait()
	if len(base.items) != 1 {
		t.Fatalf("expected one item after concurrent ingest, got %d", len(base.items))
	}
}
