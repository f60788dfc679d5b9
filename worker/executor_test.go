package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/queue"
	"github.com/shopforge/jobcore/worker"
)

func TestExecutor_CompletesJob(t *testing.T) {
	h := newHarness(t)
	h.register(t, "catalog.export", func(_ context.Context, progress job.Progress) (any, error) {
		if err := progress(50, "halfway"); err != nil {
			return nil, err
		}
		return map[string]int{"rows": 120}, nil
	})
	r := h.insert(t, "catalog.export", 3)

	claimed, err := h.exec.TryClaimAndRun(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("TryClaimAndRun: %v", err)
	}
	if !claimed {
		t.Fatal("expected job to be claimed")
	}

	got := h.get(t, r.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Error("expected started_at and completed_at to be set")
	}
	if got.FailedAt != nil || got.CancelledAt != nil {
		t.Error("completed record must not carry failed_at or cancelled_at")
	}
	var res map[string]int
	if err := json.Unmarshal(got.Result, &res); err != nil || res["rows"] != 120 {
		t.Errorf("result = %s (%v)", got.Result, err)
	}

	rows := h.history(t, r.ID)
	if len(rows) != 1 || rows[0].Status != job.StatusCompleted {
		t.Fatalf("expected one completed history row, got %d", len(rows))
	}
}

func TestExecutor_RetriesThenFailsPermanently(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.register(t, "billing.run", func(context.Context, job.Progress) (any, error) {
		calls.Add(1)
		return nil, errors.New("gateway unavailable")
	})
	r := h.insert(t, "billing.run", 2)
	ctx := context.Background()

	var delays []time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		before := h.clock.Now()
		claimed, err := h.exec.TryClaimAndRun(ctx, r.ID)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if !claimed {
			t.Fatalf("attempt %d: expected claim", attempt)
		}

		got := h.get(t, r.ID)
		if got.RetryCount > got.MaxRetries {
			t.Fatalf("retry_count %d exceeds max_retries %d", got.RetryCount, got.MaxRetries)
		}
		if attempt < 3 {
			if got.Status != job.StatusPending {
				t.Fatalf("attempt %d: status = %s, want pending", attempt, got.Status)
			}
			if got.RetryCount != attempt {
				t.Fatalf("attempt %d: retry_count = %d", attempt, got.RetryCount)
			}
			delays = append(delays, got.ScheduledAt.Sub(before))

			// Not yet due: nobody may claim it.
			if claimed, _ := h.exec.TryClaimAndRun(ctx, r.ID); claimed {
				t.Fatalf("attempt %d: claimed before backoff elapsed", attempt)
			}
			h.clock.Advance(got.ScheduledAt.Sub(h.clock.Now()))
		}
	}

	got := h.get(t, r.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", got.RetryCount)
	}
	if got.FailedAt == nil || got.LastError != "gateway unavailable" {
		t.Errorf("failed_at = %v, last_error = %q", got.FailedAt, got.LastError)
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}

	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 30*time.Second {
		t.Errorf("delays = %v, want [5s 30s]", delays)
	}

	rows := h.history(t, r.ID)
	if len(rows) != 3 {
		t.Fatalf("history rows = %d, want 3", len(rows))
	}
	for i, row := range rows {
		if row.Status != job.StatusFailed || row.Error != "gateway unavailable" {
			t.Errorf("row %d = %s %q", i, row.Status, row.Error)
		}
		if row.RetryCount != i+1 {
			t.Errorf("row %d retry_count = %d, want %d", i, row.RetryCount, i+1)
		}
	}

	// Terminal: never claimable again.
	if claimed, _ := h.exec.TryClaimAndRun(ctx, r.ID); claimed {
		t.Fatal("failed job was claimed again")
	}
}

func TestExecutor_CancelMidRunKeepsPartialResult(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	proceed := make(chan struct{})
	h.register(t, "catalog.import", func(_ context.Context, progress job.Progress) (any, error) {
		if err := progress(40, "imported 40 of 100"); err != nil {
			return nil, err
		}
		close(started)
		<-proceed
		if err := progress(50, "imported 50 of 100"); err != nil {
			return map[string]int{"imported": 40}, err
		}
		return map[string]int{"imported": 100}, nil
	})
	r := h.insert(t, "catalog.import", 3)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		claimed, _ := h.exec.TryClaimAndRun(ctx, r.ID)
		done <- claimed
	}()

	<-started
	if _, err := h.store.Transition(ctx, r.ID, []job.Status{job.StatusRunning}, job.Patch{Status: job.StatusCancelling}); err != nil {
		t.Fatalf("request cancellation: %v", err)
	}
	close(proceed)

	if !<-done {
		t.Fatal("expected job to be claimed")
	}

	got := h.get(t, r.ID)
	if got.Status != job.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	if got.CancelledAt == nil || got.CompletedAt != nil {
		t.Error("expected cancelled_at only")
	}
	var res map[string]int
	if err := json.Unmarshal(got.Result, &res); err != nil || res["imported"] != 40 {
		t.Errorf("partial result = %s (%v)", got.Result, err)
	}

	rows := h.history(t, r.ID)
	if len(rows) != 1 || rows[0].Status != job.StatusCancelled {
		t.Fatalf("expected one cancelled history row, got %v", rows)
	}
}

func TestExecutor_CompletionWhileCancellingFinalizesCancelled(t *testing.T) {
	h := newHarness(t)
	var rec *job.Record
	h.register(t, "email.send", func(ctx context.Context, _ job.Progress) (any, error) {
		// Cancellation arrives but the handler never checks progress.
		_, _ = h.store.Transition(ctx, rec.ID, []job.Status{job.StatusRunning}, job.Patch{Status: job.StatusCancelling})
		return "sent", nil
	})
	rec = h.insert(t, "email.send", 3)

	if claimed, err := h.exec.TryClaimAndRun(context.Background(), rec.ID); err != nil || !claimed {
		t.Fatalf("TryClaimAndRun = %v, %v", claimed, err)
	}

	got := h.get(t, rec.ID)
	if got.Status != job.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if string(got.Result) != `"sent"` {
		t.Errorf("result = %s, want \"sent\"", got.Result)
	}
}

func TestExecutor_LateDeliveryLeavesCancellingJobToItsHandler(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	proceed := make(chan struct{})
	h.register(t, "catalog.import", func(_ context.Context, progress job.Progress) (any, error) {
		if err := progress(40, "imported 40 of 100"); err != nil {
			return nil, err
		}
		close(started)
		<-proceed
		if err := progress(50, "imported 50 of 100"); err != nil {
			return map[string]int{"imported": 40}, err
		}
		return map[string]int{"imported": 100}, nil
	})
	r := h.insert(t, "catalog.import", 3)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		claimed, _ := h.exec.TryClaimAndRun(ctx, r.ID)
		done <- claimed
	}()

	<-started
	if _, err := h.store.Transition(ctx, r.ID, []job.Status{job.StatusRunning}, job.Patch{Status: job.StatusCancelling}); err != nil {
		t.Fatalf("request cancellation: %v", err)
	}

	// A leftover durable entry for the same job is delivered while the
	// handler is still running.
	qd := worker.NewQueueDispatcher(h.store, h.exec, &fakeQueue{}, nil)
	if err := qd.Process(ctx, queue.NewEntry(r, h.clock.Now())); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.get(t, r.ID); got.Status != job.StatusCancelling {
		t.Fatalf("status after late delivery = %s, want cancelling", got.Status)
	}

	close(proceed)
	if !<-done {
		t.Fatal("expected job to be claimed")
	}

	got := h.get(t, r.ID)
	if got.Status != job.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	var res map[string]int
	if err := json.Unmarshal(got.Result, &res); err != nil || res["imported"] != 40 {
		t.Errorf("partial result = %s (%v)", got.Result, err)
	}
	if rows := h.history(t, r.ID); len(rows) != 1 {
		t.Fatalf("history rows = %d, want 1", len(rows))
	}
}

func TestExecutor_UnknownTypeFailsPermanently(t *testing.T) {
	h := newHarness(t)
	r := h.insert(t, "plugin.sync", 5)

	if claimed, err := h.exec.TryClaimAndRun(context.Background(), r.ID); err != nil || !claimed {
		t.Fatalf("TryClaimAndRun = %v, %v", claimed, err)
	}

	got := h.get(t, r.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.LastError != worker.ReasonUnknownType {
		t.Errorf("last_error = %q", got.LastError)
	}
	if got.RetryCount != got.MaxRetries {
		t.Errorf("retry_count = %d, want max_retries %d", got.RetryCount, got.MaxRetries)
	}
}

func TestExecutor_PanicIsRetried(t *testing.T) {
	h := newHarness(t)
	h.register(t, "theme.build", func(context.Context, job.Progress) (any, error) {
		panic("nil theme")
	})
	r := h.insert(t, "theme.build", 1)

	if claimed, err := h.exec.TryClaimAndRun(context.Background(), r.ID); err != nil || !claimed {
		t.Fatalf("TryClaimAndRun = %v, %v", claimed, err)
	}

	got := h.get(t, r.ID)
	if got.Status != job.StatusPending || got.RetryCount != 1 {
		t.Fatalf("status = %s retry_count = %d, want pending/1", got.Status, got.RetryCount)
	}
	if got.LastError != "panic in job theme.build: nil theme" {
		t.Errorf("last_error = %q", got.LastError)
	}
}

func TestExecutor_Hooks(t *testing.T) {
	var completed, retried atomic.Int32
	h := newHarness(t,
		worker.WithCompletionHook(func(context.Context, *job.Record) { completed.Add(1) }),
		worker.WithRetryHook(func(_ context.Context, r *job.Record) {
			if r.Status != job.StatusPending {
				t.Errorf("retry hook saw status %s", r.Status)
			}
			retried.Add(1)
		}),
	)
	fail := true
	h.register(t, "email.send", func(context.Context, job.Progress) (any, error) {
		if fail {
			fail = false
			return nil, errors.New("smtp timeout")
		}
		return nil, nil
	})
	r := h.insert(t, "email.send", 3)
	ctx := context.Background()

	_, _ = h.exec.TryClaimAndRun(ctx, r.ID)
	h.clock.Advance(time.Minute)
	_, _ = h.exec.TryClaimAndRun(ctx, r.ID)

	if retried.Load() != 1 || completed.Load() != 1 {
		t.Fatalf("retried = %d, completed = %d, want 1/1", retried.Load(), completed.Load())
	}
}

func TestExecutor_TypedFactoryBadPayloadFails(t *testing.T) {
	h := newHarness(t)
	type payload struct{ SKU string }
	err := h.reg.Register("catalog.reindex", job.TypedFactory(func(context.Context, *job.Record, payload, job.Progress) (any, error) {
		t.Error("handler must not run with an undecodable payload")
		return nil, nil
	}))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	r := h.insert(t, "catalog.reindex", 0, func(r *job.Record) { r.Payload = []byte(`{not json`) })
	ctx := context.Background()

	if claimed, err := h.exec.TryClaimAndRun(ctx, r.ID); err != nil || !claimed {
		t.Fatalf("TryClaimAndRun = %v, %v", claimed, err)
	}
	got := h.get(t, r.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.HasPrefix(got.LastError, "build handler:") {
		t.Errorf("last_error = %q", got.LastError)
	}
}
