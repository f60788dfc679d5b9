// Package memory provides an in-memory implementation of store.Store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures a memory Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]*job.Record
	history map[string][]*job.HistoryEntry // key: job ID

	now func() time.Time
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:    make(map[string]*job.Record),
		history: make(map[string][]*job.HistoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// InsertJob persists a new record.
func (m *Store) InsertJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.jobs[key]; exists {
		return jobcore.ErrJobAlreadyExists
	}
	cp := r.Clone()
	if cp.CreatedAt.IsZero() {
		cp.Entity = jobcore.Entity{CreatedAt: m.now(), UpdatedAt: m.now()}
	}
	m.jobs[key] = cp
	return nil
}

// GetJob retrieves a record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobcore.ErrJobNotFound
	}
	return r.Clone(), nil
}

// Transition applies p when the current status is in from. The check and
// the write happen under one lock.
func (m *Store) Transition(_ context.Context, jobID id.JobID, from []job.Status, p job.Patch) (*job.Record, error) {
	if err := job.CheckTransition(from, p.Status); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobcore.ErrJobNotFound
	}
	if !slices.Contains(from, r.Status) {
		return nil, jobcore.ErrInvalidState
	}
	p.Apply(r, m.now())
	return r.Clone(), nil
}

// UpdateProgress writes progress fields without touching the status.
func (m *Store) UpdateProgress(_ context.Context, jobID id.JobID, percent int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return jobcore.ErrJobNotFound
	}
	r.Progress = percent
	r.ProgressMessage = message
	r.UpdatedAt = m.now()
	return nil
}

// NextEligible returns the highest priority due pending record not
// excluded by skip.
func (m *Store) NextEligible(_ context.Context, dueBefore time.Time, skip job.Exclusion) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *job.Record
	for _, r := range m.jobs {
		if r.Status != job.StatusPending || r.ScheduledAt.After(dueBefore) || skip.Excludes(r) {
			continue
		}
		if best == nil || lessEligible(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

// lessEligible orders by priority desc, scheduled_at asc, created_at asc.
func lessEligible(a, b *job.Record) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ListByStatus returns records in the given status, oldest update first.
func (m *Store) ListByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Record, 0)
	for _, r := range m.jobs {
		if r.Status != status {
			continue
		}
		if !opts.UpdatedBefore.IsZero() && !r.UpdatedAt.Before(opts.UpdatedBefore) {
			continue
		}
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].UpdatedAt.Before(result[k].UpdatedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// InsertHistory appends an audit row.
func (m *Store) InsertHistory(_ context.Context, h *job.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := h.JobID.String()
	if _, ok := m.jobs[key]; !ok {
		return jobcore.ErrJobNotFound
	}
	cp := *h
	if h.Result != nil {
		cp.Result = append([]byte(nil), h.Result...)
	}
	m.history[key] = append(m.history[key], &cp)
	return nil
}

// ListHistory returns the audit rows of a job, oldest first.
func (m *Store) ListHistory(_ context.Context, jobID id.JobID) ([]*job.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.history[jobID.String()]
	result := make([]*job.HistoryEntry, len(rows))
	for i, h := range rows {
		cp := *h
		result[i] = &cp
	}
	sort.SliceStable(result, func(i, k int) bool {
		return result[i].ExecutedAt.Before(result[k].ExecutedAt)
	})
	return result, nil
}

// Stats aggregates records created within tr by status and job type.
func (m *Store) Stats(_ context.Context, tr job.TimeRange) (*job.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct {
		status job.Status
		typ    string
	}
	type acc struct {
		count    int64
		durTotal time.Duration
		durCount int64
	}

	groups := make(map[key]*acc)
	var total int64
	for _, r := range m.jobs {
		if !tr.Contains(r.CreatedAt) {
			continue
		}
		total++
		k := key{r.Status, r.Type}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.count++
		if r.StartedAt != nil && r.CompletedAt != nil {
			a.durTotal += r.CompletedAt.Sub(*r.StartedAt)
			a.durCount++
		}
	}

	stats := &job.Stats{Range: tr, Total: total, Groups: make([]job.TypeStats, 0, len(groups))}
	for k, a := range groups {
		ts := job.TypeStats{Status: k.status, Type: k.typ, Count: a.count}
		if a.durCount > 0 {
			ts.AvgDuration = a.durTotal / time.Duration(a.durCount)
		}
		stats.Groups = append(stats.Groups, ts)
	}
	sort.Slice(stats.Groups, func(i, k int) bool {
		if stats.Groups[i].Status != stats.Groups[k].Status {
			return stats.Groups[i].Status < stats.Groups[k].Status
		}
		return stats.Groups[i].Type < stats.Groups[k].Type
	})
	return stats, nil
}
