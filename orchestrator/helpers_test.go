package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/orchestrator"
	"github.com/shopforge/jobcore/queue"
	"github.com/shopforge/jobcore/store/memory"
)

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

// testConfig keeps background loops out of the way; tests drive dispatch
// explicitly unless they override it.
func testConfig() jobcore.Config {
	cfg := jobcore.DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.CancelSweepInterval = 0
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

type fixture struct {
	clock *testClock
	store *memory.Store
	reg   *job.Registry
	orch  *orchestrator.Orchestrator
}

func newFixture(t *testing.T, opts ...orchestrator.Option) *fixture {
	t.Helper()
	clock := newTestClock()
	s := memory.New(memory.WithClock(clock.Now))
	reg := job.NewRegistry()

	base := []orchestrator.Option{
		orchestrator.WithConfig(testConfig()),
		orchestrator.WithClock(clock.Now),
	}
	o, err := orchestrator.New(s, reg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = o.Stop(context.Background()) })
	return &fixture{clock: clock, store: s, reg: reg, orch: o}
}

func (f *fixture) handle(t *testing.T, jobType string, fn job.HandlerFunc) {
	t.Helper()
	if err := f.reg.Register(jobType, func(*job.Record) (job.Handler, error) { return fn, nil }); err != nil {
		t.Fatalf("Register(%q): %v", jobType, err)
	}
}

// fakeQueue is an in-memory queue.Adapter that records every call.
type fakeQueue struct {
	mu      sync.Mutex
	pingErr error
	groups  []queue.Config
	stall   queue.StallFunc
	process queue.ProcessFunc
	entries []queue.Entry
	removed []string
	started bool
	stopped bool
}

func (q *fakeQueue) Enqueue(_ context.Context, e queue.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	return nil
}

func (q *fakeQueue) Remove(_ context.Context, _, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, jobID)
	return true, nil
}

func (q *fakeQueue) Start(_ context.Context, groups []queue.Config, process queue.ProcessFunc, stall queue.StallFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.groups = groups
	q.process = process
	q.stall = stall
	q.started = true
	return nil
}

func (q *fakeQueue) Stop(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	return nil
}

func (q *fakeQueue) Ping(context.Context) error { return q.pingErr }

func (q *fakeQueue) Entries() []queue.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Entry(nil), q.entries...)
}

func (q *fakeQueue) Removed() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.removed...)
}
