package redis

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shopforge/jobcore/queue"
)

const defaultGroupConcurrency = 5

// Start launches one worker group per config, plus a stall sweeper per
// group when stall is non-nil. It returns once the groups are running.
func (q *Queue) Start(ctx context.Context, groups []queue.Config, process queue.ProcessFunc, stall queue.StallFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}
	q.running = true

	base := context.WithoutCancel(ctx)
	runCtx, stop := context.WithCancel(base)
	jobCtx, abort := context.WithCancel(base)
	q.stop, q.abort = stop, abort
	q.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	for _, cfg := range groups {
		g.Go(func() error {
			return q.runGroup(gctx, jobCtx, cfg, process)
		})
		if stall != nil {
			g.Go(func() error {
				return q.sweepLoop(gctx, cfg.JobType, stall)
			})
		}
	}

	done := q.done
	go func() {
		if err := g.Wait(); err != nil {
			q.logger.Error("durable queue groups exited", slog.String("error", err.Error()))
		}
		close(done)
	}()

	q.logger.Info("durable queue started",
		slog.Int("groups", len(groups)),
		slog.Duration("stall_timeout", q.stallTimeout),
	)
	return nil
}

// Stop stops claiming and waits for in-flight entries. If ctx expires
// first, in-flight processing contexts are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	stop, abort, done := q.stop, q.abort, q.done
	q.mu.Unlock()

	stop()

	finished := make(chan struct{})
	go func() {
		<-done
		q.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		q.logger.Info("durable queue stopped gracefully")
	case <-ctx.Done():
		q.logger.Warn("durable queue shutdown timed out, cancelling in-flight entries")
		abort()
		<-finished
	}
	abort()
	return nil
}

func (q *Queue) runGroup(ctx, jobCtx context.Context, cfg queue.Config, process queue.ProcessFunc) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultGroupConcurrency
	}
	sem := make(chan struct{}, concurrency)

	// With a shared manager, rate limits are enforced at Acquire.
	var limiter *rate.Limiter
	if q.limits == nil && cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	q.logger.Debug("durable group running",
		slog.String("job_type", cfg.JobType),
		slog.Int("concurrency", concurrency),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sem <- struct{}{}:
		}

		e, ok, err := q.claim(ctx, cfg.JobType)
		if err != nil || !ok {
			<-sem
			if err != nil && ctx.Err() == nil {
				q.logger.Error("durable claim failed",
					slog.String("job_type", cfg.JobType),
					slog.String("error", err.Error()),
				)
			}
			if !sleep(ctx, q.pollInterval) {
				return nil
			}
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				<-sem
				q.requeue(context.WithoutCancel(ctx), e, time.Now().UTC())
				return nil
			}
		}

		if q.limits != nil && !q.limits.Acquire(e.JobType, e.TenantID) {
			<-sem
			q.requeue(ctx, e, time.Now().UTC().Add(q.requeueDelay))
			continue
		}

		q.inflight.Add(1)
		go func() {
			defer q.inflight.Done()
			defer func() { <-sem }()
			if q.limits != nil {
				defer q.limits.Release(e.JobType, e.TenantID)
			}
			q.deliver(jobCtx, e, process)
		}()
	}
}

// claim takes the best ready entry for jobType: lowest priority value,
// then earliest ready time, then earliest enqueue time.
func (q *Queue) claim(ctx context.Context, jobType string) (queue.Entry, bool, error) {
	now := time.Now().UTC()
	pending := q.pendingKey(jobType)

	ids, err := q.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:     pending,
		Start:   "-inf",
		Stop:    strconv.FormatInt(now.UnixMilli(), 10),
		ByScore: true,
		Count:   int64(q.batchSize),
	}).Result()
	if err != nil || len(ids) == 0 {
		return queue.Entry{}, false, err
	}

	keys := make([]string, len(ids))
	for i, jobID := range ids {
		keys[i] = q.entryKey(jobID)
	}
	vals, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return queue.Entry{}, false, err
	}

	candidates := make([]queue.Entry, 0, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		var e queue.Entry
		if ok {
			ok = msgpack.Unmarshal([]byte(s), &e) == nil
		}
		if !ok {
			q.logger.Warn("dropping orphaned durable member",
				slog.String("job_type", jobType),
				slog.String("job_id", ids[i]),
			)
			q.client.ZRem(ctx, pending, ids[i])
			continue
		}
		candidates = append(candidates, e)
	}
	orderCandidates(candidates)

	deadline := now.Add(q.stallTimeout).UnixMilli()
	for _, e := range candidates {
		won, err := claimScript.Run(ctx, q.client,
			[]string{pending, q.activeKey(jobType)}, e.JobID, deadline).Int()
		if err != nil {
			return queue.Entry{}, false, err
		}
		if won == 0 {
			continue
		}
		e.Deliveries++
		if err := q.saveEntry(ctx, e); err != nil {
			q.logger.Warn("failed to record delivery", slog.String("job_id", e.JobID), slog.String("error", err.Error()))
		}
		return e, true, nil
	}
	return queue.Entry{}, false, nil
}

func orderCandidates(entries []queue.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ReadyAt.Equal(b.ReadyAt) {
			return a.ReadyAt.Before(b.ReadyAt)
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})
}

// deliver runs process under a renewed lease, then acks the entry.
func (q *Queue) deliver(ctx context.Context, e queue.Entry, process queue.ProcessFunc) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go q.heartbeat(hbCtx, e)

	err := process(ctx, e)
	stopHeartbeat()
	if err != nil {
		q.logger.Warn("durable entry processing failed",
			slog.String("job_id", e.JobID),
			slog.String("job_type", e.JobType),
			slog.String("error", err.Error()),
		)
	}

	if err := q.ack(context.WithoutCancel(ctx), e); err != nil {
		q.logger.Error("durable ack failed",
			slog.String("job_id", e.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (q *Queue) heartbeat(ctx context.Context, e queue.Entry) {
	interval := max(q.stallTimeout/3, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().UTC().Add(q.stallTimeout)
			err := q.client.ZAddArgs(ctx, q.activeKey(e.JobType), goredis.ZAddArgs{
				XX:      true,
				Members: []goredis.Z{{Score: float64(deadline.UnixMilli()), Member: e.JobID}},
			}).Err()
			if err != nil && ctx.Err() == nil {
				q.logger.Warn("durable heartbeat failed",
					slog.String("job_id", e.JobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (q *Queue) ack(ctx context.Context, e queue.Entry) error {
	return ackScript.Run(ctx, q.client,
		[]string{q.activeKey(e.JobType), q.pendingKey(e.JobType), q.entryKey(e.JobID)},
		e.JobID).Err()
}

func (q *Queue) requeue(ctx context.Context, e queue.Entry, readyAt time.Time) {
	err := requeueScript.Run(ctx, q.client,
		[]string{q.activeKey(e.JobType), q.pendingKey(e.JobType)},
		e.JobID, readyAt.UnixMilli()).Err()
	if err != nil {
		q.logger.Error("durable requeue failed",
			slog.String("job_id", e.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (q *Queue) sweepLoop(ctx context.Context, jobType string, stall queue.StallFunc) error {
	ticker := time.NewTicker(max(q.stallTimeout/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := q.SweepStalled(ctx, jobType, stall); err != nil && ctx.Err() == nil {
				q.logger.Error("stall sweep failed",
					slog.String("job_type", jobType),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// SweepStalled reclaims every entry of jobType whose lease has expired and
// reports it to stall. It returns how many entries were reclaimed.
func (q *Queue) SweepStalled(ctx context.Context, jobType string, stall queue.StallFunc) (int, error) {
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	active := q.activeKey(jobType)

	ids, err := q.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:     active,
		Start:   "-inf",
		Stop:    now,
		ByScore: true,
	}).Result()
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, jobID := range ids {
		won, err := reclaimScript.Run(ctx, q.client, []string{active}, jobID, now).Int()
		if err != nil {
			return reclaimed, err
		}
		if won == 0 {
			continue
		}
		reclaimed++

		e, ok, err := q.loadEntry(ctx, jobID)
		if err != nil || !ok {
			e = queue.Entry{JobID: jobID, JobType: jobType}
		}
		if err := q.ack(ctx, e); err != nil {
			q.logger.Warn("failed to drop stalled entry", slog.String("job_id", jobID), slog.String("error", err.Error()))
		}

		q.logger.Warn("durable entry stalled",
			slog.String("job_id", jobID),
			slog.String("job_type", jobType),
			slog.Int("deliveries", e.Deliveries),
		)
		stall(ctx, e)
	}
	return reclaimed, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
