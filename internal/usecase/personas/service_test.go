package personas

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/infra/cache"
	"newsroom/internal/usecase/ingest"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)

type personaStore struct {
	personas map[int64]domain.Persona
	deleted  []int64
	events   []domain.BusinessMetric
	order    *[]string
}

func (s *personaStore) ListActivePersonas(context.Context) ([]domain.Persona, error) { return nil, nil }
func (s *personaStore) GetPersona(_ context.Context, id int64) (domain.Persona, error) {
	p, ok := s.personas[id]
	if !ok {
		return domain.Persona{}, domain.ErrNotFound
	}
	return p, nil
}
func (s *personaStore) TouchLastSummary(context.Context, int64, time.Time) error { return nil }
func (s *personaStore) DeletePersona(_ context.Context, id int64) error {
	if s.order != nil {
		*s.order = append(*s.order, "delete")
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *personaStore) RecordBusinessMetric(_ context.Context, m domain.BusinessMetric) error {
	s.events = append(s.events, m)
	return nil
}

type fakeFetcher struct {
	report ingest.Report
	err    error
}

func (f fakeFetcher) FetchPersona(context.Context, domain.Persona) (ingest.Report, error) {
	return f.report, f.err
}

type fakeDigest struct {
	local   time.Time
	created bool
	report  domain.DeliveryReport
	sent    bool
	err     error
}

func (d *fakeDigest) Summarize(_ context.Context, _ domain.Persona, local time.Time) (domain.DeliverySummary, bool, error) {
	d.local = local
	return domain.DeliverySummary{ID: 3, ItemsCount: 4}, d.created, d.err
}

func (d *fakeDigest) Send(_ context.Context, _ domain.Persona, local time.Time) (domain.DeliverySummary, domain.DeliveryReport, bool, error) {
	d.local = local
	return domain.DeliverySummary{ID: 3}, d.report, d.sent, d.err
}

func (d *fakeDigest) AttachAudio(context.Context, domain.Persona) (domain.DeliverySummary, error) {
	return domain.DeliverySummary{ID: 3, AudioPath: "/audio/a.mp3"}, d.err
}

type fakeBots struct {
	order *[]string
}

func (b fakeBots) Stop(int64) {
	*b.order = append(*b.order, "stop")
}

type chanQueue struct {
	jobs  chan domain.ActionJob
	acked chan bool
}

func newChanQueue() *chanQueue {
	return &chanQueue{jobs: make(chan domain.ActionJob, 4), acked: make(chan bool, 4)}
}

func (q *chanQueue) Enqueue(_ context.Context, job domain.ActionJob) error {
	q.jobs <- job
	return nil
}

func (q *chanQueue) Receive(ctx context.Context) (domain.ActionJob, domain.AckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.ActionJob{}, nil, ctx.Err()
	case job := <-q.jobs:
		return job, func(ok bool) error {
			q.acked <- ok
			return nil
		}, nil
	}
}

func newTestService(st *personaStore, f Fetcher, d Digester, deps Deps) *Service {
	deps.Personas = st
	deps.Fetcher = f
	deps.Digest = d
	deps.Events = st
	deps.Clock = fixedClock{now: now}
	return NewService(deps, "Europe/Paris", zerolog.Nop())
}

func paris() *personaStore {
	return &personaStore{personas: map[int64]domain.Persona{1: {ID: 1, Name: "Léa", Timezone: "Europe/Paris"}}}
}

func TestRunManualFetch(t *testing.T) {
	st := paris()
	svc := newTestService(st, fakeFetcher{report: ingest.Report{Sources: 2, Fetched: 5, Inserted: 3}}, &fakeDigest{}, Deps{})

	res := svc.RunManual(context.Background(), 1, domain.ActionFetch)
	if !res.OK || res.Step != "fetch" || res.Details["inserted"] != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(st.events) != 1 || st.events[0].Event != domain.BusinessMetricEventActionRequested {
		t.Fatalf("manual action must be recorded, got %+v", st.events)
	}
}

func TestRunManualUsesPersonaLocalTime(t *testing.T) {
	d := &fakeDigest{created: true}
	svc := newTestService(paris(), fakeFetcher{}, d, Deps{})

	res := svc.RunManual(context.Background(), 1, domain.ActionSummarize)
	if !res.OK || res.Details["summary_id"] != int64(3) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if d.local.Day() != 16 || d.local.Hour() != 1 {
		t.Fatalf("summary must run on the Paris local day, got %v", d.local)
	}
}

func TestRunManualReportsFailures(t *testing.T) {
	svc := newTestService(paris(), fakeFetcher{}, &fakeDigest{err: errors.New("smtp down")}, Deps{})

	res := svc.RunManual(context.Background(), 1, domain.ActionSend)
	if res.OK || res.Step != "send" || res.Message != "smtp down" {
		t.Fatalf("unexpected result: %+v", res)
	}
	res = svc.RunManual(context.Background(), 99, domain.ActionSend)
	if res.OK || res.Step != "persona" {
		t.Fatalf("unknown persona must fail at the persona step: %+v", res)
	}
}

func TestRunManualSendDetails(t *testing.T) {
	d := &fakeDigest{sent: true, report: domain.DeliveryReport{
		Channels:  map[domain.ChannelKind]bool{domain.ChannelTelegram: true, domain.ChannelEmail: false},
		Delivered: 2,
	}}
	res := newTestService(paris(), fakeFetcher{}, d, Deps{}).RunManual(context.Background(), 1, domain.ActionSend)
	channels, _ := res.Details["channels"].(map[string]bool)
	if !res.OK || res.Details["sent_count"] != 2 || !channels["telegram"] || channels["email"] {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDeleteStopsBotFirst(t *testing.T) {
	var order []string
	st := paris()
	st.order = &order
	svc := newTestService(st, fakeFetcher{}, &fakeDigest{}, Deps{Bots: fakeBots{order: &order}})

	if err := svc.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(order) != 2 || order[0] != "stop" || order[1] != "delete" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestSubmitWithoutQueue(t *testing.T) {
	svc := newTestService(paris(), fakeFetcher{}, &fakeDigest{}, Deps{})
	if _, err := svc.Submit(context.Background(), 1, domain.ActionFetch, "admin"); !errors.Is(err, ErrQueueDisabled) {
		t.Fatalf("expected ErrQueueDisabled, got %v", err)
	}
}

func TestWorkerStoresResults(t *testing.T) {
	q := newChanQueue()
	results := cache.NewMemory()
	svc := newTestService(paris(), fakeFetcher{report: ingest.Report{Inserted: 1, Fetched: 1}}, &fakeDigest{}, Deps{Queue: q, Results: results})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Worker(ctx) }()

	job, err := svc.Submit(context.Background(), 1, domain.ActionFetch, "admin")
	if err != nil || job.ID == "" {
		t.Fatalf("Submit: %+v %v", job, err)
	}
	select {
	case ok := <-q.acked:
		if !ok {
			t.Fatalf("job must be acked as processed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not processed")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Worker: %v", err)
	}

	res, err := svc.Result(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.JobID != job.ID || !res.OK || res.Action != domain.ActionFetch {
		t.Fatalf("unexpected stored result: %+v", res)
	}
	if _, err := svc.Result(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
