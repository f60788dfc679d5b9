package job

import (
	"time"

	"github.com/shopforge/jobcore/id"
)

// HistoryEntry is an append-only audit row written on every completion,
// failure or cancellation of a job. Progress updates never write history.
type HistoryEntry struct {
	ID         id.HistoryID `json:"id"`
	JobID      id.JobID     `json:"job_id"`
	Status     Status       `json:"status"`
	Result     []byte       `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	RetryCount int          `json:"retry_count"`
	ExecutedAt time.Time    `json:"executed_at"`
}
