package relayhook

import (
	"encoding/json"
	"time"
)

// Job lifecycle event types. Each constant maps to one ext lifecycle hook
// and becomes Event.Type.
const (
	EventJobScheduled = "jobcore.job.scheduled"
	EventJobStarted   = "jobcore.job.started"
	EventJobCompleted = "jobcore.job.completed"
	EventJobFailed    = "jobcore.job.failed"
	EventJobRetrying  = "jobcore.job.retrying"
	EventJobCancelled = "jobcore.job.cancelled"
)

// AllEvents returns every event type this extension can emit.
func AllEvents() []string {
	return []string{
		EventJobScheduled,
		EventJobStarted,
		EventJobCompleted,
		EventJobFailed,
		EventJobRetrying,
		EventJobCancelled,
	}
}

// Event is one relayed lifecycle event. ID is a UUIDv7 subscribers can
// use to drop duplicates.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Encode returns the wire form of e.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
