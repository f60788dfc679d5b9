package job

import (
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
)

// Metadata keys written by the orchestrator.
const (
	// MetaRecurring marks a record that reschedules itself on completion.
	MetaRecurring = "recurring"
	// MetaInterval holds the named interval of a recurring record.
	MetaInterval = "interval"
	// MetaRecurrenceOf holds the ID of the occurrence that scheduled this one.
	MetaRecurrenceOf = "recurrence_of"
)

// Record is one scheduled unit of work.
type Record struct {
	jobcore.Entity

	ID              id.JobID       `json:"id"`
	Type            string         `json:"job_type"`
	Payload         []byte         `json:"payload,omitempty"`
	Priority        Priority       `json:"priority"`
	Status          Status         `json:"status"`
	ScheduledAt     time.Time      `json:"scheduled_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	FailedAt        *time.Time     `json:"failed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	LastError       string         `json:"last_error,omitempty"`
	Progress        int            `json:"progress"`
	ProgressMessage string         `json:"progress_message,omitempty"`
	Result          []byte         `json:"result,omitempty"`
	TenantID        string         `json:"tenant_id,omitempty"`
	RequesterID     string         `json:"requester_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IsRecurring reports whether the record carries the recurrence marker.
func (r *Record) IsRecurring() bool {
	if r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata[MetaRecurring].(bool)
	return ok && v
}

// IntervalName returns the named interval of a recurring record.
func (r *Record) IntervalName() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata[MetaInterval].(string)
	return s
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Payload = cloneBytes(r.Payload)
	cp.Result = cloneBytes(r.Result)
	cp.StartedAt = cloneTime(r.StartedAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	cp.FailedAt = cloneTime(r.FailedAt)
	cp.CancelledAt = cloneTime(r.CancelledAt)
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
