package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLock serializes Migrate across daemons sharing a database.
const migrationLock int64 = 0x6a6f62636f7265 // "jobcore"

var _ store.Store = (*Store)(nil)

// Store keeps job records and history in PostgreSQL through a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New connects to connString, e.g.
// "postgres://jobcore:secret@db:5432/shop?sslmode=disable".
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("jobcore/postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("jobcore/postgres: connect: %w", err)
	}
	return NewFromPool(pool, opts...), nil
}

// NewFromPool wraps an existing pool. Close closes it.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded migrations that jobcore_migrations does not
// list yet, each in its own transaction, holding a session advisory lock
// for the whole run.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("jobcore/postgres: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLock); err != nil {
		return fmt.Errorf("jobcore/postgres: migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLock)
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobcore_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("jobcore/postgres: create migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT filename FROM jobcore_migrations`)
	if err != nil {
		return fmt.Errorf("jobcore/postgres: list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("jobcore/postgres: list applied migrations: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("jobcore/postgres: read migrations: %w", err)
	}
	slices.Sort(files)

	for _, path := range files {
		name := path[len("migrations/"):]
		if slices.Contains(applied, name) {
			continue
		}
		sql, err := fs.ReadFile(migrationsFS, path)
		if err != nil {
			return fmt.Errorf("jobcore/postgres: read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO jobcore_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", jobcore.ErrMigrationFailed, name, err)
		}
		s.logger.Info("applied migration", slog.String("file", name))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the pool for callers that share it, such as health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }
