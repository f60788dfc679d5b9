package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
)

// InsertHistory appends an audit row.
func (s *Store) InsertHistory(ctx context.Context, h *job.HistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobcore_job_history (id, job_id, status, result, error, retry_count, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID.String(), h.JobID.String(), string(h.Status), h.Result, h.Error, h.RetryCount, h.ExecutedAt,
	)
	if err != nil {
		if isForeignKey(err) {
			return jobcore.ErrJobNotFound
		}
		return fmt.Errorf("jobcore/postgres: insert history: %w", err)
	}
	return nil
}

// ListHistory returns the audit rows of a job, oldest first.
func (s *Store) ListHistory(ctx context.Context, jobID id.JobID) ([]*job.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, status, result, error, retry_count, executed_at
		FROM jobcore_job_history
		WHERE job_id = $1
		ORDER BY executed_at ASC, id ASC`,
		jobID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("jobcore/postgres: list history: %w", err)
	}
	defer rows.Close()

	result := make([]*job.HistoryEntry, 0)
	for rows.Next() {
		var (
			h         job.HistoryEntry
			idStr     string
			jobIDStr  string
			statusStr string
		)
		if err := rows.Scan(&idStr, &jobIDStr, &statusStr, &h.Result, &h.Error, &h.RetryCount, &h.ExecutedAt); err != nil {
			return nil, fmt.Errorf("jobcore/postgres: scan history row: %w", err)
		}
		if h.ID, err = id.ParseHistoryID(idStr); err != nil {
			return nil, fmt.Errorf("jobcore/postgres: parse history id %q: %w", idStr, err)
		}
		if h.JobID, err = id.ParseJobID(jobIDStr); err != nil {
			return nil, fmt.Errorf("jobcore/postgres: parse job id %q: %w", jobIDStr, err)
		}
		h.Status = job.Status(statusStr)
		result = append(result, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobcore/postgres: iterate history rows: %w", err)
	}
	return result, nil
}

// Stats aggregates records created within tr by status and job type.
func (s *Store) Stats(ctx context.Context, tr job.TimeRange) (*job.Stats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, job_type, COUNT(*),
			AVG(EXTRACT(EPOCH FROM (completed_at - started_at)))::float8
				FILTER (WHERE started_at IS NOT NULL AND completed_at IS NOT NULL)
		FROM jobcore_jobs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		GROUP BY status, job_type
		ORDER BY status, job_type`,
		nullTime(tr.From), nullTime(tr.To),
	)
	if err != nil {
		return nil, fmt.Errorf("jobcore/postgres: stats: %w", err)
	}
	defer rows.Close()

	stats := &job.Stats{Range: tr, Groups: make([]job.TypeStats, 0)}
	for rows.Next() {
		var (
			ts        job.TypeStats
			statusStr string
			avgSecs   *float64
		)
		if err := rows.Scan(&statusStr, &ts.Type, &ts.Count, &avgSecs); err != nil {
			return nil, fmt.Errorf("jobcore/postgres: scan stats row: %w", err)
		}
		ts.Status = job.Status(statusStr)
		if avgSecs != nil {
			ts.AvgDuration = time.Duration(*avgSecs * float64(time.Second))
		}
		stats.Total += ts.Count
		stats.Groups = append(stats.Groups, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobcore/postgres: iterate stats rows: %w", err)
	}
	return stats, nil
}
