package job

import "time"

// ScheduleOptions configures a single schedule request.
type ScheduleOptions struct {
	// Priority orders dispatch among eligible jobs.
	Priority Priority

	// Delay postpones the earliest dispatch time. Zero means immediate.
	Delay time.Duration

	// MaxRetries is the retry budget. Negative means "use the orchestrator
	// default".
	MaxRetries int

	// TenantID and RequesterID identify who the work is for. Empty values
	// fall back to the scope carried on the context.
	TenantID    string
	RequesterID string

	// Metadata holds free-form annotations stored on the record.
	Metadata map[string]any
}

// DefaultScheduleOptions returns options with normal priority, no delay and
// the orchestrator's default retry budget.
func DefaultScheduleOptions() ScheduleOptions {
	return ScheduleOptions{
		Priority:   PriorityNormal,
		MaxRetries: -1,
	}
}

// ScheduleOption is a functional option for a schedule request.
type ScheduleOption func(*ScheduleOptions)

// WithPriority sets the dispatch priority.
func WithPriority(p Priority) ScheduleOption {
	return func(o *ScheduleOptions) { o.Priority = p }
}

// WithDelay postpones the earliest dispatch time by d.
func WithDelay(d time.Duration) ScheduleOption {
	return func(o *ScheduleOptions) { o.Delay = d }
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) ScheduleOption {
	return func(o *ScheduleOptions) { o.MaxRetries = n }
}

// WithTenant sets the tenant the job belongs to.
func WithTenant(tenantID string) ScheduleOption {
	return func(o *ScheduleOptions) { o.TenantID = tenantID }
}

// WithRequester sets the user or service that requested the job.
func WithRequester(requesterID string) ScheduleOption {
	return func(o *ScheduleOptions) { o.RequesterID = requesterID }
}

// WithMetadata merges annotations into the record metadata.
func WithMetadata(md map[string]any) ScheduleOption {
	return func(o *ScheduleOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			o.Metadata[k] = v
		}
	}
}
