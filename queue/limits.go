package queue

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-job-type dispatch behaviour. The durable queue starts
// one worker group per Config; both dispatch paths consult the Manager for
// its limits.
type Config struct {
	// JobType is the handler registry key this config applies to.
	JobType string

	// Concurrency is the worker count of the durable group and the cap on
	// simultaneously running jobs of this type. Zero means the default
	// group concurrency and no type-specific cap.
	Concurrency int

	// RateLimit is the maximum sustained jobs per second started for this
	// type. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// TenantConfig caps one tenant on one job type, so a single storefront
// cannot monopolize a shared handler.
type TenantConfig struct {
	JobType  string
	TenantID string

	// RateLimit is the sustained jobs per second for this tenant.
	RateLimit float64

	// RateBurst is the burst size for the tenant's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this tenant on this
	// type. Zero means no tenant-specific concurrency limit.
	MaxConcurrency int
}

type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

type tenantState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// Manager enforces per-type and per-tenant rate limits and concurrency
// caps at dispatch time. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	types   map[string]*typeState
	tenants map[string]*tenantState
}

// NewManager creates a Manager with the given type configurations.
// Types not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		types:   make(map[string]*typeState, len(configs)),
		tenants: make(map[string]*tenantState),
	}
	for _, cfg := range configs {
		m.types[cfg.JobType] = newTypeState(cfg)
	}
	return m
}

func newLimiter(limit float64, burst int) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

func newTypeState(cfg Config) *typeState {
	return &typeState{config: cfg, limiter: newLimiter(cfg.RateLimit, cfg.RateBurst)}
}

func tenantKey(jobType, tenantID string) string {
	return fmt.Sprintf("%s:%s", jobType, tenantID)
}

// Admission is the outcome of an Admit call.
type Admission int

const (
	// Admitted means the job may start; the caller owns one slot.
	Admitted Admission = iota
	// TypeLimited means the job type as a whole is at a limit.
	TypeLimited
	// TenantLimited means only this tenant on this type is at a limit.
	TenantLimited
)

// Acquire checks limits for the job type and tenant. If the job may start
// it increments the active counters and returns true. The caller MUST call
// Release when the job finishes.
func (m *Manager) Acquire(jobType, tenantID string) bool {
	return m.Admit(jobType, tenantID) == Admitted
}

// Admit is Acquire with the reason for a refusal, so a dispatcher can skip
// every job of a limited type or only one tenant's jobs.
func (m *Manager) Admit(jobType, tenantID string) Admission {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[jobType]
	if ts != nil && ts.config.Concurrency > 0 && ts.active >= ts.config.Concurrency {
		return TypeLimited
	}

	var tn *tenantState
	if tenantID != "" {
		tn = m.tenants[tenantKey(jobType, tenantID)]
		if tn != nil && tn.maxConcurrency > 0 && tn.active >= tn.maxConcurrency {
			return TenantLimited
		}
	}

	// Tokens are only spent once every concurrency gate has passed.
	if ts != nil && ts.limiter != nil && !ts.limiter.Allow() {
		return TypeLimited
	}
	if tn != nil && tn.limiter != nil && !tn.limiter.Allow() {
		return TenantLimited
	}

	if ts != nil {
		ts.active++
	}
	if tn != nil {
		tn.active++
	}
	return Admitted
}

// Release decrements the active counters for the job type and tenant.
func (m *Manager) Release(jobType, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[jobType]; ts != nil && ts.active > 0 {
		ts.active--
	}
	if tenantID != "" {
		if tn := m.tenants[tenantKey(jobType, tenantID)]; tn != nil && tn.active > 0 {
			tn.active--
		}
	}
}

// SetConfig updates (or creates) a type configuration, keeping the current
// active count.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := newTypeState(cfg)
	if existing := m.types[cfg.JobType]; existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.JobType] = ts
}

// SetTenantConfig configures limits for one tenant on one job type,
// replacing any earlier configuration for the pair.
func (m *Manager) SetTenantConfig(cfg TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey(cfg.JobType, cfg.TenantID)
	tn := &tenantState{
		maxConcurrency: cfg.MaxConcurrency,
		limiter:        newLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	if existing := m.tenants[key]; existing != nil {
		tn.active = existing.active
	}
	m.tenants[key] = tn
}

// Config returns the configuration for jobType and whether one was set.
func (m *Manager) Config(jobType string) (Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[jobType]; ts != nil {
		return ts.config, true
	}
	return Config{JobType: jobType}, false
}

// ActiveCount returns the number of running jobs of a type.
func (m *Manager) ActiveCount(jobType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[jobType]; ts != nil {
		return ts.active
	}
	return 0
}

// TenantActiveCount returns the number of running jobs for a type+tenant.
func (m *Manager) TenantActiveCount(jobType, tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tn := m.tenants[tenantKey(jobType, tenantID)]; tn != nil {
		return tn.active
	}
	return 0
}
