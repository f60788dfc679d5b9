package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func newRecord(jobType string, status job.Status, priority job.Priority) *job.Record {
	return &job.Record{
		Entity:      jobcore.NewEntity(),
		ID:          id.NewJobID(),
		Type:        jobType,
		Payload:     []byte(`{"test":true}`),
		Status:      status,
		Priority:    priority,
		MaxRetries:  3,
		ScheduledAt: time.Now().UTC().Add(-time.Second),
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("catalog.import", job.StatusPending, job.PriorityNormal)

	tests := []struct {
		name    string
		wantErr error
	}{
		{"insert new record", nil},
		{"insert duplicate record", jobcore.ErrJobAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.InsertJob(ctx, r); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := s.GetJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Type != r.Type {
		t.Fatalf("got type %q, want %q", got.Type, r.Type)
	}

	// Returned records are copies.
	got.Payload[0] = 'X'
	again, _ := s.GetJob(ctx, r.ID)
	if again.Payload[0] != '{' {
		t.Fatal("GetJob returned a shared payload")
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, jobcore.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTransition_Gate(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("email.send", job.StatusPending, job.PriorityNormal)
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	now := time.Now().UTC()
	got, err := s.Transition(ctx, r.ID, []job.Status{job.StatusPending}, job.Patch{
		Status:    job.StatusRunning,
		StartedAt: &now,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != job.StatusRunning || got.StartedAt == nil {
		t.Fatalf("unexpected record after transition: %+v", got)
	}

	// Gate no longer holds.
	_, err = s.Transition(ctx, r.ID, []job.Status{job.StatusPending}, job.Patch{Status: job.StatusRunning})
	if !errors.Is(err, jobcore.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	_, err = s.Transition(ctx, id.NewJobID(), []job.Status{job.StatusPending}, job.Patch{Status: job.StatusRunning})
	if !errors.Is(err, jobcore.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTransition_RejectsLifecycleViolation(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("email.send", job.StatusPending, job.PriorityNormal)
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	// The gate matches, but pending may not jump straight to completed.
	_, err := s.Transition(ctx, r.ID, []job.Status{job.StatusPending}, job.Patch{Status: job.StatusCompleted})
	if !errors.Is(err, jobcore.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	got, err := s.GetJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestTransition_AtMostOneClaim(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("catalog.import", job.StatusPending, job.PriorityNormal)
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, r.ID, []job.Status{job.StatusPending}, job.Patch{Status: job.StatusRunning})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly 1 successful claim, got %d", got)
	}
}

func TestNextEligible_Ordering(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	low := newRecord("low", job.StatusPending, job.PriorityLow)
	highLate := newRecord("high-late", job.StatusPending, job.PriorityHigh)
	highEarly := newRecord("high-early", job.StatusPending, job.PriorityHigh)
	highEarly.ScheduledAt = now.Add(-time.Minute)
	future := newRecord("future", job.StatusPending, job.PriorityUrgent)
	future.ScheduledAt = now.Add(time.Hour)
	running := newRecord("running", job.StatusRunning, job.PriorityUrgent)

	for _, r := range []*job.Record{low, highLate, highEarly, future, running} {
		if err := s.InsertJob(ctx, r); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	want := []string{"high-early", "high-late", "low"}
	for _, w := range want {
		got, err := s.NextEligible(ctx, now, job.Exclusion{})
		if err != nil {
			t.Fatalf("NextEligible: %v", err)
		}
		if got == nil {
			t.Fatalf("expected %q, got nil", w)
		}
		if got.Type != w {
			t.Fatalf("got %q, want %q", got.Type, w)
		}
		if _, err := s.Transition(ctx, got.ID, []job.Status{job.StatusPending}, job.Patch{Status: job.StatusRunning}); err != nil {
			t.Fatalf("Transition: %v", err)
		}
	}

	got, err := s.NextEligible(ctx, now, job.Exclusion{})
	if err != nil {
		t.Fatalf("NextEligible: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no eligible record, got %q", got.Type)
	}
}

func TestNextEligible_Exclusion(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	imp := newRecord("catalog.import", job.StatusPending, job.PriorityUrgent)
	imp.TenantID = "shop_1"
	mail1 := newRecord("email.send", job.StatusPending, job.PriorityHigh)
	mail1.TenantID = "shop_1"
	mail2 := newRecord("email.send", job.StatusPending, job.PriorityLow)
	mail2.TenantID = "shop_2"
	for _, r := range []*job.Record{imp, mail1, mail2} {
		if err := s.InsertJob(ctx, r); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}
	now := time.Now().UTC()

	tests := []struct {
		name string
		skip job.Exclusion
		want *job.Record
	}{
		{"none", job.Exclusion{}, imp},
		{"type", job.Exclusion{Types: []string{"catalog.import"}}, mail1},
		{"type and tenant", job.Exclusion{
			Types:   []string{"catalog.import"},
			Tenants: []job.TypeTenant{{Type: "email.send", TenantID: "shop_1"}},
		}, mail2},
		{"everything", job.Exclusion{Types: []string{"catalog.import", "email.send"}}, nil},
	}
	for _, tt := range tests {
		got, err := s.NextEligible(ctx, now, tt.skip)
		if err != nil {
			t.Fatalf("%s: NextEligible: %v", tt.name, err)
		}
		switch {
		case tt.want == nil && got != nil:
			t.Fatalf("%s: got %s, want nil", tt.name, got.ID)
		case tt.want != nil && (got == nil || got.ID != tt.want.ID):
			t.Fatalf("%s: got %v, want %s", tt.name, got, tt.want.ID)
		}
	}
}

func TestListByStatus_UpdatedBefore(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s := New(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	old := newRecord("old", job.StatusRunning, job.PriorityNormal)
	fresh := newRecord("fresh", job.StatusRunning, job.PriorityNormal)
	for _, r := range []*job.Record{old, fresh} {
		if err := s.InsertJob(ctx, r); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	if _, err := s.Transition(ctx, old.ID, []job.Status{job.StatusRunning}, job.Patch{Status: job.StatusCancelling}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	clock = base.Add(10 * time.Minute)
	if _, err := s.Transition(ctx, fresh.ID, []job.Status{job.StatusRunning}, job.Patch{Status: job.StatusCancelling}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := s.ListByStatus(ctx, job.StatusCancelling, job.ListOpts{UpdatedBefore: base.Add(5 * time.Minute)})
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		t.Fatalf("expected only the old record, got %d records", len(got))
	}

	all, _ := s.ListByStatus(ctx, job.StatusCancelling, job.ListOpts{})
	if len(all) != 2 {
		t.Fatalf("expected 2 records without filter, got %d", len(all))
	}
	limited, _ := s.ListByStatus(ctx, job.StatusCancelling, job.ListOpts{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestUpdateProgress(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("catalog.import", job.StatusRunning, job.PriorityNormal)
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if err := s.UpdateProgress(ctx, r.ID, 40, "imported 40 of 100"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := s.GetJob(ctx, r.ID)
	if got.Progress != 40 || got.ProgressMessage != "imported 40 of 100" {
		t.Fatalf("progress = %d %q", got.Progress, got.ProgressMessage)
	}
	if got.Status != job.StatusRunning {
		t.Fatalf("UpdateProgress changed status to %s", got.Status)
	}
	if err := s.UpdateProgress(ctx, id.NewJobID(), 1, ""); !errors.Is(err, jobcore.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("email.send", job.StatusRunning, job.PriorityNormal)
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	base := time.Now().UTC()
	for i, st := range []job.Status{job.StatusFailed, job.StatusCompleted} {
		h := &job.HistoryEntry{
			ID:         id.NewHistoryID(),
			JobID:      r.ID,
			Status:     st,
			RetryCount: i,
			ExecutedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.InsertHistory(ctx, h); err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
	}

	rows, err := s.ListHistory(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Status != job.StatusFailed || rows[1].Status != job.StatusCompleted {
		t.Fatalf("unexpected order: %s, %s", rows[0].Status, rows[1].Status)
	}

	orphan := &job.HistoryEntry{ID: id.NewHistoryID(), JobID: id.NewJobID()}
	if err := s.InsertHistory(ctx, orphan); !errors.Is(err, jobcore.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound for orphan history, got %v", err)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Minute)
	end := start.Add(30 * time.Second)

	done1 := newRecord("email.send", job.StatusCompleted, job.PriorityNormal)
	done1.StartedAt, done1.CompletedAt = &start, &end
	done2 := newRecord("email.send", job.StatusCompleted, job.PriorityNormal)
	end2 := start.Add(10 * time.Second)
	done2.StartedAt, done2.CompletedAt = &start, &end2
	failed := newRecord("catalog.import", job.StatusFailed, job.PriorityNormal)
	old := newRecord("email.send", job.StatusCompleted, job.PriorityNormal)
	old.CreatedAt = start.Add(-48 * time.Hour)

	for _, r := range []*job.Record{done1, done2, failed, old} {
		if err := s.InsertJob(ctx, r); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	stats, err := s.Stats(ctx, job.TimeRange{From: start.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("Total = %d, want 3", stats.Total)
	}

	var completed *job.TypeStats
	for i := range stats.Groups {
		if stats.Groups[i].Status == job.StatusCompleted && stats.Groups[i].Type == "email.send" {
			completed = &stats.Groups[i]
		}
	}
	if completed == nil {
		t.Fatal("missing completed email.send group")
	}
	if completed.Count != 2 {
		t.Errorf("Count = %d, want 2", completed.Count)
	}
	if completed.AvgDuration != 20*time.Second {
		t.Errorf("AvgDuration = %v, want 20s", completed.AvgDuration)
	}
}
