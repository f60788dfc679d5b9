package job

import (
	"context"
	"time"

	"github.com/shopforge/jobcore/id"
)

// Patch describes the field updates applied by a gated transition. Nil
// fields are left untouched.
type Patch struct {
	// Status is the target status. Required.
	Status Status

	StartedAt       *time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
	CancelledAt     *time.Time
	ScheduledAt     *time.Time
	RetryCount      *int
	LastError       *string
	Progress        *int
	ProgressMessage *string
	Result          []byte
}

// Apply copies the patch onto r and stamps UpdatedAt with now. Stores use it
// so every backend applies identical field semantics.
func (p Patch) Apply(r *Record, now time.Time) {
	r.Status = p.Status
	if p.StartedAt != nil {
		r.StartedAt = cloneTime(p.StartedAt)
	}
	if p.CompletedAt != nil {
		r.CompletedAt = cloneTime(p.CompletedAt)
	}
	if p.FailedAt != nil {
		r.FailedAt = cloneTime(p.FailedAt)
	}
	if p.CancelledAt != nil {
		r.CancelledAt = cloneTime(p.CancelledAt)
	}
	if p.ScheduledAt != nil {
		r.ScheduledAt = *p.ScheduledAt
	}
	if p.RetryCount != nil {
		r.RetryCount = *p.RetryCount
	}
	if p.LastError != nil {
		r.LastError = *p.LastError
	}
	if p.Progress != nil {
		r.Progress = *p.Progress
	}
	if p.ProgressMessage != nil {
		r.ProgressMessage = *p.ProgressMessage
	}
	if p.Result != nil {
		r.Result = cloneBytes(p.Result)
	}
	r.UpdatedAt = now
}

// ListOpts controls filtering for status list queries.
type ListOpts struct {
	// UpdatedBefore keeps only records last updated strictly before this
	// time. Zero means no filter.
	UpdatedBefore time.Time
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
}

// Exclusion names job types and (type, tenant) pairs that NextEligible
// skips, typically because they are at their dispatch limits.
type Exclusion struct {
	Types   []string
	Tenants []TypeTenant
}

// TypeTenant identifies one tenant on one job type.
type TypeTenant struct {
	Type     string
	TenantID string
}

// Key returns the "type:tenant" form used by stores to match pairs.
func (tt TypeTenant) Key() string { return tt.Type + ":" + tt.TenantID }

// Empty reports whether nothing is excluded.
func (x Exclusion) Empty() bool { return len(x.Types) == 0 && len(x.Tenants) == 0 }

// Excludes reports whether r matches the exclusion.
func (x Exclusion) Excludes(r *Record) bool {
	for _, t := range x.Types {
		if r.Type == t {
			return true
		}
	}
	for _, tt := range x.Tenants {
		if r.Type == tt.Type && r.TenantID == tt.TenantID {
			return true
		}
	}
	return false
}

// TimeRange bounds statistics queries by record creation time. A zero bound
// is open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.From.IsZero() && t.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && !t.Before(tr.To) {
		return false
	}
	return true
}

// TypeStats aggregates one (status, job type) group.
type TypeStats struct {
	Status Status `json:"status"`
	Type   string `json:"job_type"`
	Count  int64  `json:"count"`
	// AvgDuration is the mean of completed_at − started_at over records
	// that have both. Zero when none do.
	AvgDuration time.Duration `json:"avg_duration"`
}

// Stats is the aggregate returned by GetStatistics.
type Stats struct {
	Range  TimeRange   `json:"range"`
	Total  int64       `json:"total"`
	Groups []TypeStats `json:"groups"`
}

// Store defines the persistence contract for job records and history.
type Store interface {
	// InsertJob persists a new record.
	InsertJob(ctx context.Context, r *Record) error

	// GetJob retrieves a record by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// Transition atomically applies p when the record's current status is
	// one of from, and returns the updated record. It returns
	// jobcore.ErrInvalidState when the gate fails or the move is not
	// allowed by the lifecycle, and jobcore.ErrJobNotFound when the record
	// does not exist. This is the only way a dispatcher
	// claims a job.
	Transition(ctx context.Context, jobID id.JobID, from []Status, p Patch) (*Record, error)

	// UpdateProgress writes progress fields without touching the status.
	UpdateProgress(ctx context.Context, jobID id.JobID, percent int, message string) error

	// NextEligible returns the highest priority pending record with
	// scheduled_at <= dueBefore that skip does not exclude, or nil when
	// none is eligible. Ties break by scheduled_at then created_at.
	NextEligible(ctx context.Context, dueBefore time.Time, skip Exclusion) (*Record, error)

	// ListByStatus returns records in the given status.
	ListByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Record, error)

	// InsertHistory appends an audit row.
	InsertHistory(ctx context.Context, h *HistoryEntry) error

	// ListHistory returns the audit rows of a job, oldest first.
	ListHistory(ctx context.Context, jobID id.JobID) ([]*HistoryEntry, error)

	// Stats aggregates records created within tr by status and job type.
	Stats(ctx context.Context, tr TimeRange) (*Stats, error)
}
