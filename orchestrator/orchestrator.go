package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/backoff"
	"github.com/shopforge/jobcore/ext"
	"github.com/shopforge/jobcore/job"
	mw "github.com/shopforge/jobcore/middleware"
	"github.com/shopforge/jobcore/observability"
	"github.com/shopforge/jobcore/queue"
	"github.com/shopforge/jobcore/worker"
)

const instrumentationName = "github.com/shopforge/jobcore"

// Orchestrator owns the job lifecycle: scheduling, dispatch, retry,
// recurrence, cancellation and startup recovery.
type Orchestrator struct {
	config     jobcore.Config
	store      job.Store
	registry   *job.Registry
	extensions *ext.Registry
	exts       []ext.Extension
	bo         backoff.Strategy
	mws        []mw.Middleware
	logger     *slog.Logger
	now        func() time.Time

	queue         queue.Adapter
	groupConfigs  []queue.Config
	tenantConfigs []queue.TenantConfig
	limits        *queue.Manager

	executor        *worker.Executor
	poller          *worker.Poller
	queueDispatcher *worker.QueueDispatcher
	durableActive   atomic.Bool
	durableErr      atomic.Pointer[error]

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default configuration.
func WithConfig(cfg jobcore.Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithQueue enables the durable dispatch path.
func WithQueue(q queue.Adapter) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(o *Orchestrator) { o.exts = append(o.exts, e) }
}

// WithMiddleware appends middleware after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(o *Orchestrator) { o.mws = append(o.mws, m) }
}

// WithBackoff sets the retry delay strategy. Defaults to
// backoff.DefaultStrategy().
func WithBackoff(b backoff.Strategy) Option {
	return func(o *Orchestrator) { o.bo = b }
}

// WithGroupConfig sets per-type durable group and admission settings.
// Types not listed run with the default group concurrency and no limits.
func WithGroupConfig(configs ...queue.Config) Option {
	return func(o *Orchestrator) { o.groupConfigs = append(o.groupConfigs, configs...) }
}

// WithTenantLimits caps individual tenants on individual job types.
func WithTenantLimits(configs ...queue.TenantConfig) Option {
	return func(o *Orchestrator) { o.tenantConfigs = append(o.tenantConfigs, configs...) }
}

// WithLimits shares an existing limits manager, typically the one also
// handed to the durable queue, so both paths count against one ceiling.
func WithLimits(m *queue.Manager) Option {
	return func(o *Orchestrator) { o.limits = m }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension. If not set, the global
// provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. A nil registry gets a fresh one.
func New(store job.Store, registry *job.Registry, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, jobcore.ErrNoStore
	}
	if registry == nil {
		registry = job.NewRegistry()
	}

	o := &Orchestrator{
		config:   jobcore.DefaultConfig(),
		store:    store,
		registry: registry,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.extensions = ext.NewRegistry(o.logger)
	for _, e := range o.exts {
		o.extensions.Register(e)
	}

	if o.bo == nil {
		o.bo = backoff.DefaultStrategy()
	}

	if o.limits == nil {
		o.limits = queue.NewManager(o.groupConfigs...)
	} else {
		for _, cfg := range o.groupConfigs {
			o.limits.SetConfig(cfg)
		}
	}
	for _, tc := range o.tenantConfigs {
		o.limits.SetTenantConfig(tc)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if o.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(o.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	if o.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(o.meterProvider.Meter(instrumentationName))
		obsExt = observability.NewMetricsExtensionWithMeter(o.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	o.extensions.Register(obsExt)

	// Default stack: recover → tracing → metrics → logging → scope.
	stack := make([]mw.Middleware, 0, 5+len(o.mws))
	stack = append(stack,
		mw.Recover(o.logger),
		tracingMw,
		metricsMw,
		mw.Logging(o.logger),
		mw.Scope(),
	)
	stack = append(stack, o.mws...)

	o.executor = worker.NewExecutor(o.store, o.registry,
		worker.WithExtensions(o.extensions),
		worker.WithBackoff(o.bo),
		worker.WithMiddleware(stack...),
		worker.WithLogger(o.logger),
		worker.WithClock(o.now),
		worker.WithCompletionHook(o.scheduleNextOccurrence),
		worker.WithRetryHook(o.enqueueDurable),
	)

	o.poller = worker.NewPoller(o.store, o.executor,
		worker.WithConcurrency(o.config.Concurrency),
		worker.WithPollInterval(o.config.PollInterval),
		worker.WithStaleThreshold(o.config.StaleThreshold),
		worker.WithCancelSweep(o.config.CancelSweepInterval, o.config.CancelGrace),
		worker.WithDurableActive(o.durableActive.Load),
		worker.WithLimits(o.limits),
		worker.WithClaimHook(o.removeDurable),
		worker.WithPollerLogger(o.logger),
		worker.WithPollerClock(o.now),
	)

	if o.queue != nil {
		o.queueDispatcher = worker.NewQueueDispatcher(o.store, o.executor, o.queue, o.logger)
	}

	return o, nil
}

// Register registers a typed handler function for jobType. The payload is
// decoded from JSON into T before fn runs.
func Register[T any](o *Orchestrator, jobType string, fn job.TypedFunc[T]) error {
	return o.registry.Register(jobType, job.TypedFactory(fn))
}

// Registry returns the handler registry.
func (o *Orchestrator) Registry() *job.Registry { return o.registry }

// Extensions returns the extension registry.
func (o *Orchestrator) Extensions() *ext.Registry { return o.extensions }

// Store returns the record store.
func (o *Orchestrator) Store() job.Store { return o.store }

// Executor returns the executor shared by both dispatch paths.
func (o *Orchestrator) Executor() *worker.Executor { return o.executor }

// Poller returns the polling dispatcher.
func (o *Orchestrator) Poller() *worker.Poller { return o.poller }

// Limits returns the admission limits manager.
func (o *Orchestrator) Limits() *queue.Manager { return o.limits }

// DurableActive reports whether the durable queue is serving jobs.
func (o *Orchestrator) DurableActive() bool { return o.durableActive.Load() }

// DurableError returns why the durable queue did not start, wrapping
// jobcore.ErrQueueUnavailable, or nil.
func (o *Orchestrator) DurableError() error {
	if p := o.durableErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Config returns the active configuration.
func (o *Orchestrator) Config() jobcore.Config { return o.config }

// group builds the durable group config of jobType.
func (o *Orchestrator) group(jobType string) queue.Config {
	cfg, ok := o.limits.Config(jobType)
	if !ok {
		cfg = queue.Config{JobType: jobType}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = o.config.QueueConcurrency
	}
	return cfg
}

func (o *Orchestrator) groups() []queue.Config {
	types := o.registry.Types()
	groups := make([]queue.Config, len(types))
	for i, t := range types {
		groups[i] = o.group(t)
	}
	return groups
}

// enqueueDurable hands a pending record to the durable queue. Failures
// are logged; the polling dispatcher picks the record up after the
// staleness window.
func (o *Orchestrator) enqueueDurable(ctx context.Context, r *job.Record) {
	if o.queue == nil || !o.durableActive.Load() {
		return
	}
	if err := o.queue.Enqueue(ctx, queue.NewEntry(r, o.now())); err != nil {
		o.logger.Warn("durable enqueue failed, polling fallback will pick the job up",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
			slog.String("error", err.Error()),
		)
	}
}
