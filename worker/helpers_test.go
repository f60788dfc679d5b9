package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/middleware"
	"github.com/shopforge/jobcore/queue"
	"github.com/shopforge/jobcore/store/memory"
	"github.com/shopforge/jobcore/worker"
)

// testClock is a manually advanced time source shared by the store and the
// executor.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock *testClock
	store *memory.Store
	reg   *job.Registry
	exec  *worker.Executor
}

func newHarness(t *testing.T, opts ...worker.ExecutorOption) *harness {
	t.Helper()
	clock := newTestClock()
	s := memory.New(memory.WithClock(clock.Now))
	reg := job.NewRegistry()
	logger := slog.Default()

	base := []worker.ExecutorOption{
		worker.WithClock(clock.Now),
		worker.WithLogger(logger),
		worker.WithMiddleware(middleware.Recover(logger)),
	}
	exec := worker.NewExecutor(s, reg, append(base, opts...)...)
	return &harness{clock: clock, store: s, reg: reg, exec: exec}
}

func (h *harness) register(t *testing.T, jobType string, fn job.HandlerFunc) {
	t.Helper()
	err := h.reg.Register(jobType, func(_ *job.Record) (job.Handler, error) { return fn, nil })
	if err != nil {
		t.Fatalf("Register(%q): %v", jobType, err)
	}
}

func (h *harness) insert(t *testing.T, jobType string, maxRetries int, mods ...func(*job.Record)) *job.Record {
	t.Helper()
	now := h.clock.Now()
	r := &job.Record{
		Entity:      jobcore.Entity{CreatedAt: now, UpdatedAt: now},
		ID:          id.NewJobID(),
		Type:        jobType,
		Priority:    job.PriorityNormal,
		Status:      job.StatusPending,
		ScheduledAt: now,
		MaxRetries:  maxRetries,
	}
	for _, mod := range mods {
		mod(r)
	}
	if err := h.store.InsertJob(context.Background(), r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	return r
}

func (h *harness) get(t *testing.T, jobID id.JobID) *job.Record {
	t.Helper()
	r, err := h.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return r
}

func (h *harness) history(t *testing.T, jobID id.JobID) []*job.HistoryEntry {
	t.Helper()
	rows, err := h.store.ListHistory(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	return rows
}

// fakeQueue records enqueued entries.
type fakeQueue struct {
	mu      sync.Mutex
	entries []queue.Entry
}

func (q *fakeQueue) Enqueue(_ context.Context, e queue.Entry) error {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) Remove(context.Context, string, string) (bool, error) { return false, nil }

func (q *fakeQueue) Start(context.Context, []queue.Config, queue.ProcessFunc, queue.StallFunc) error {
	return nil
}

func (q *fakeQueue) Stop(context.Context) error { return nil }

func (q *fakeQueue) Ping(context.Context) error { return nil }

func (q *fakeQueue) Entries() []queue.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Entry(nil), q.entries...)
}
