package main

import (
	"context"
	"time"

	"github.com/shopforge/jobcore/interval"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/orchestrator"
)

// heartbeatType is a built-in recurring job that proves both dispatch
// paths are alive.
const heartbeatType = "system.heartbeat"

type heartbeatPayload struct {
	Source string `json:"source"`
}

type heartbeatResult struct {
	Source string    `json:"source"`
	RanAt  time.Time `json:"ran_at"`
}

func registerHeartbeat(o *orchestrator.Orchestrator) error {
	return orchestrator.Register(o, heartbeatType, func(_ context.Context, _ *job.Record, p heartbeatPayload, progress job.Progress) (any, error) {
		if err := progress(100, "alive"); err != nil {
			return nil, err
		}
		return heartbeatResult{Source: p.Source, RanAt: time.Now().UTC()}, nil
	})
}

// ensureHeartbeat schedules the hourly heartbeat unless an occurrence is
// already waiting or running.
func ensureHeartbeat(ctx context.Context, o *orchestrator.Orchestrator) (*job.Record, error) {
	for _, st := range []job.Status{job.StatusPending, job.StatusRunning} {
		records, err := o.Store().ListByStatus(ctx, st, job.ListOpts{})
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if r.Type == heartbeatType && r.IsRecurring() {
				return r, nil
			}
		}
	}
	return o.ScheduleRecurringJob(ctx, heartbeatType, heartbeatPayload{Source: "jobcored"}, interval.Hourly,
		job.WithPriority(job.PriorityLow),
		job.WithMaxRetries(0),
	)
}
