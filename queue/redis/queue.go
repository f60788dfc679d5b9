package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/queue"
)

var _ queue.Adapter = (*Queue)(nil)

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithPrefix overrides the key prefix.
func WithPrefix(p string) Option {
	return func(q *Queue) { q.prefix = p }
}

// WithStallTimeout sets the worker lease length. A claimed entry whose lease
// is not renewed within this window is reported as stalled.
func WithStallTimeout(d time.Duration) Option {
	return func(q *Queue) { q.stallTimeout = d }
}

// WithPollInterval sets how long an idle group waits before looking for
// ready entries again.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// WithBatchSize sets how many ready candidates a claim inspects.
func WithBatchSize(n int) Option {
	return func(q *Queue) { q.batchSize = n }
}

// WithLimits routes admission through a shared limits manager. When set,
// the manager's per-type rate and concurrency gates replace the group's own
// rate limiter, and per-tenant limits apply.
func WithLimits(m *queue.Manager) Option {
	return func(q *Queue) { q.limits = m }
}

// WithRequeueDelay sets how far an entry denied by the limits manager is
// pushed back.
func WithRequeueDelay(d time.Duration) Option {
	return func(q *Queue) { q.requeueDelay = d }
}

// Queue is the Redis durable queue.
type Queue struct {
	client goredis.UniversalClient
	logger *slog.Logger
	limits *queue.Manager

	prefix       string
	stallTimeout time.Duration
	pollInterval time.Duration
	batchSize    int
	requeueDelay time.Duration

	mu       sync.Mutex
	running  bool
	stop     context.CancelFunc // stops claiming
	abort    context.CancelFunc // cancels in-flight entries
	done     chan struct{}
	inflight sync.WaitGroup
}

// New creates a Redis-backed durable queue. The caller owns the client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Queue {
	q := &Queue{
		client:       client,
		logger:       slog.Default(),
		prefix:       defaultPrefix,
		stallTimeout: 10 * time.Minute,
		pollInterval: time.Second,
		batchSize:    16,
		requeueDelay: time.Second,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Client returns the underlying Redis client.
func (q *Queue) Client() goredis.UniversalClient { return q.client }

// Ping verifies the Redis connection is alive. Failures wrap
// jobcore.ErrQueueUnavailable.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", jobcore.ErrQueueUnavailable, err)
	}
	return nil
}

// Enqueue stores the entry and makes it ready at e.ReadyAt. Enqueueing an
// ID that is already waiting replaces its entry and ready time.
func (q *Queue) Enqueue(ctx context.Context, e queue.Entry) error {
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	if e.ReadyAt.IsZero() {
		e.ReadyAt = e.EnqueuedAt
	}

	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("jobcore/redis: encode entry %s: %w", e.JobID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.entryKey(e.JobID), data, 0)
	pipe.ZAdd(ctx, q.pendingKey(e.JobType), goredis.Z{
		Score:  float64(e.ReadyAt.UnixMilli()),
		Member: e.JobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobcore/redis: enqueue %s: %w", e.JobID, err)
	}
	return nil
}

// Remove deletes a waiting entry.
func (q *Queue) Remove(ctx context.Context, jobType, jobID string) (bool, error) {
	n, err := removeScript.Run(ctx, q.client,
		[]string{q.pendingKey(jobType), q.entryKey(jobID)}, jobID).Int()
	if err != nil {
		return false, fmt.Errorf("jobcore/redis: remove %s: %w", jobID, err)
	}
	return n == 1, nil
}

// Pending returns the number of waiting entries for a job type.
func (q *Queue) Pending(ctx context.Context, jobType string) (int64, error) {
	n, err := q.client.ZCard(ctx, q.pendingKey(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("jobcore/redis: pending %s: %w", jobType, err)
	}
	return n, nil
}

// Active returns the number of leased entries for a job type.
func (q *Queue) Active(ctx context.Context, jobType string) (int64, error) {
	n, err := q.client.ZCard(ctx, q.activeKey(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("jobcore/redis: active %s: %w", jobType, err)
	}
	return n, nil
}

func (q *Queue) loadEntry(ctx context.Context, jobID string) (queue.Entry, bool, error) {
	var e queue.Entry
	data, err := q.client.Get(ctx, q.entryKey(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("jobcore/redis: load entry %s: %w", jobID, err)
	}
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return e, false, fmt.Errorf("jobcore/redis: decode entry %s: %w", jobID, err)
	}
	return e, true, nil
}

func (q *Queue) saveEntry(ctx context.Context, e queue.Entry) error {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("jobcore/redis: encode entry %s: %w", e.JobID, err)
	}
	// XX: never resurrect an entry that was acked concurrently.
	if err := q.client.SetArgs(ctx, q.entryKey(e.JobID), data, goredis.SetArgs{Mode: "XX"}).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("jobcore/redis: save entry %s: %w", e.JobID, err)
	}
	return nil
}
