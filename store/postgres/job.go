package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
)

const jobColumns = `
	id, job_type, payload, priority, status, scheduled_at,
	started_at, completed_at, failed_at, cancelled_at,
	retry_count, max_retries, last_error, progress, progress_message,
	result, tenant_id, requester_id, metadata, created_at, updated_at`

// InsertJob persists a new record.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	meta, err := marshalMetadata(r.Metadata)
	if err != nil {
		return fmt.Errorf("jobcore/postgres: encode metadata: %w", err)
	}

	createdAt, updatedAt := r.CreatedAt, r.UpdatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
		updatedAt = createdAt
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobcore_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21
		)`,
		r.ID.String(), r.Type, r.Payload, int16(r.Priority), string(r.Status), r.ScheduledAt,
		r.StartedAt, r.CompletedAt, r.FailedAt, r.CancelledAt,
		r.RetryCount, r.MaxRetries, r.LastError, int16(r.Progress), r.ProgressMessage,
		r.Result, r.TenantID, r.RequesterID, meta, createdAt, updatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobcore.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobcore/postgres: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobcore_jobs WHERE id = $1`, jobID.String())

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobcore.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobcore/postgres: get job: %w", err)
	}
	return r, nil
}

// Transition applies p in one UPDATE gated on the current status being in
// from. Nil patch fields keep their column value.
func (s *Store) Transition(ctx context.Context, jobID id.JobID, from []job.Status, p job.Patch) (*job.Record, error) {
	if err := job.CheckTransition(from, p.Status); err != nil {
		return nil, err
	}

	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	var progress *int16
	if p.Progress != nil {
		v := int16(*p.Progress)
		progress = &v
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE jobcore_jobs SET
			status           = $3,
			started_at       = COALESCE($4, started_at),
			completed_at     = COALESCE($5, completed_at),
			failed_at        = COALESCE($6, failed_at),
			cancelled_at     = COALESCE($7, cancelled_at),
			scheduled_at     = COALESCE($8, scheduled_at),
			retry_count      = COALESCE($9, retry_count),
			last_error       = COALESCE($10, last_error),
			progress         = COALESCE($11, progress),
			progress_message = COALESCE($12, progress_message),
			result           = COALESCE($13, result),
			updated_at       = $14
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+jobColumns,
		jobID.String(), statuses, string(p.Status),
		p.StartedAt, p.CompletedAt, p.FailedAt, p.CancelledAt, p.ScheduledAt,
		p.RetryCount, p.LastError, progress, p.ProgressMessage, p.Result,
		s.now(),
	)

	r, err := scanJob(row)
	if err == nil {
		return r, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("jobcore/postgres: transition job: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobcore_jobs WHERE id = $1)`, jobID.String(),
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("jobcore/postgres: transition job: %w", err)
	}
	if !exists {
		return nil, jobcore.ErrJobNotFound
	}
	return nil, jobcore.ErrInvalidState
}

// UpdateProgress writes progress fields without touching the status.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, percent int, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobcore_jobs
		SET progress = $2, progress_message = $3, updated_at = $4
		WHERE id = $1`,
		jobID.String(), int16(percent), message, s.now(),
	)
	if err != nil {
		return fmt.Errorf("jobcore/postgres: update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobcore.ErrJobNotFound
	}
	return nil
}

// NextEligible returns the highest priority pending record due at or
// before dueBefore that skip does not exclude, or nil when none is.
func (s *Store) NextEligible(ctx context.Context, dueBefore time.Time, skip job.Exclusion) (*job.Record, error) {
	pairs := make([]string, len(skip.Tenants))
	for i, tt := range skip.Tenants {
		pairs[i] = tt.Key()
	}
	types := skip.Types
	if types == nil {
		types = []string{}
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobcore_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
		  AND NOT (job_type = ANY($2))
		  AND NOT ((job_type || ':' || tenant_id) = ANY($3))
		ORDER BY priority DESC, scheduled_at ASC, created_at ASC
		LIMIT 1`,
		dueBefore, types, pairs,
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobcore/postgres: next eligible: %w", err)
	}
	return r, nil
}

// ListByStatus returns records in the given status, oldest update first.
func (s *Store) ListByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	query := `SELECT ` + jobColumns + ` FROM jobcore_jobs WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if !opts.UpdatedBefore.IsZero() {
		query += fmt.Sprintf(" AND updated_at < $%d", argIdx)
		args = append(args, opts.UpdatedBefore)
		argIdx++
	}

	query += " ORDER BY updated_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobcore/postgres: list by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// scanJob scans a single record row.
func scanJob(row pgx.Row) (*job.Record, error) {
	var (
		r         job.Record
		idStr     string
		statusStr string
		priority  int16
		progress  int16
		meta      []byte
	)
	err := row.Scan(
		&idStr, &r.Type, &r.Payload, &priority, &statusStr, &r.ScheduledAt,
		&r.StartedAt, &r.CompletedAt, &r.FailedAt, &r.CancelledAt,
		&r.RetryCount, &r.MaxRetries, &r.LastError, &progress, &r.ProgressMessage,
		&r.Result, &r.TenantID, &r.RequesterID, &meta, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("jobcore/postgres: parse job id %q: %w", idStr, err)
	}
	r.ID = parsedID
	r.Status = job.Status(statusStr)
	r.Priority = job.Priority(priority)
	r.Progress = int(progress)

	if r.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, fmt.Errorf("jobcore/postgres: decode metadata for %s: %w", idStr, err)
	}
	return &r, nil
}

// collectJobs collects all records from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Record, error) {
	jobs := make([]*job.Record, 0)
	for rows.Next() {
		r, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobcore/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobcore/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
