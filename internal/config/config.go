// Package config loads the jobcored daemon configuration from a YAML file
// and JOBCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shopforge/jobcore"
)

// EnvPrefix prefixes every environment override, e.g. JOBCORE_DATABASE_URL
// or JOBCORE_JOBS_POLL_INTERVAL.
const EnvPrefix = "JOBCORE"

// Config holds the daemon settings.
type Config struct {
	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string `mapstructure:"database_url"`

	// RedisURL enables the durable queue. Empty runs on the polling
	// dispatcher only.
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`

	// EventsEnabled publishes lifecycle events on Redis pub/sub.
	EventsEnabled bool `mapstructure:"events_enabled"`

	// MetricsAddr is the listen address of the /metrics and /healthz
	// endpoints. Empty disables the server.
	MetricsAddr string `mapstructure:"metrics_addr"`

	Log  LogConfig  `mapstructure:"log"`
	Jobs JobsConfig `mapstructure:"jobs"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JobsConfig mirrors jobcore.Config.
type JobsConfig struct {
	Concurrency         int           `mapstructure:"concurrency"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	StaleThreshold      time.Duration `mapstructure:"stale_threshold"`
	CancelSweepInterval time.Duration `mapstructure:"cancel_sweep_interval"`
	CancelGrace         time.Duration `mapstructure:"cancel_grace"`
	QueueConcurrency    int           `mapstructure:"queue_concurrency"`
	StallTimeout        time.Duration `mapstructure:"stall_timeout"`
	DefaultMaxRetries   int           `mapstructure:"default_max_retries"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from path, or from jobcore.yaml in the working
// directory or /etc/jobcore when path is empty. A missing file is not an
// error; environment variables and defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jobcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/jobcore")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := jobcore.DefaultConfig()

	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_prefix", "jobcore:")
	v.SetDefault("events_enabled", false)
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("jobs.concurrency", d.Concurrency)
	v.SetDefault("jobs.poll_interval", d.PollInterval)
	v.SetDefault("jobs.stale_threshold", d.StaleThreshold)
	v.SetDefault("jobs.cancel_sweep_interval", d.CancelSweepInterval)
	v.SetDefault("jobs.cancel_grace", d.CancelGrace)
	v.SetDefault("jobs.queue_concurrency", d.QueueConcurrency)
	v.SetDefault("jobs.stall_timeout", d.StallTimeout)
	v.SetDefault("jobs.default_max_retries", d.DefaultMaxRetries)
	v.SetDefault("jobs.shutdown_timeout", d.ShutdownTimeout)
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: %s_DATABASE_URL)", EnvPrefix)
	}
	if c.EventsEnabled && c.RedisURL == "" {
		return errors.New("events_enabled requires redis_url")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("jobs.concurrency must be at least 1, got %d", c.Jobs.Concurrency)
	}
	if c.Jobs.QueueConcurrency < 1 {
		return fmt.Errorf("jobs.queue_concurrency must be at least 1, got %d", c.Jobs.QueueConcurrency)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive, got %s", c.Jobs.PollInterval)
	}
	if c.Jobs.DefaultMaxRetries < 0 {
		return fmt.Errorf("jobs.default_max_retries must not be negative, got %d", c.Jobs.DefaultMaxRetries)
	}
	return nil
}

// Jobcore returns the orchestrator configuration.
func (c *Config) Jobcore() jobcore.Config {
	return jobcore.Config{
		Concurrency:         c.Jobs.Concurrency,
		PollInterval:        c.Jobs.PollInterval,
		StaleThreshold:      c.Jobs.StaleThreshold,
		CancelSweepInterval: c.Jobs.CancelSweepInterval,
		CancelGrace:         c.Jobs.CancelGrace,
		QueueConcurrency:    c.Jobs.QueueConcurrency,
		StallTimeout:        c.Jobs.StallTimeout,
		DefaultMaxRetries:   c.Jobs.DefaultMaxRetries,
		ShutdownTimeout:     c.Jobs.ShutdownTimeout,
	}
}
