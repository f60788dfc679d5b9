package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	audithook "github.com/shopforge/jobcore/audit_hook"
	"github.com/shopforge/jobcore/internal/config"
	"github.com/shopforge/jobcore/orchestrator"
	"github.com/shopforge/jobcore/queue"
	redisqueue "github.com/shopforge/jobcore/queue/redis"
	relayhook "github.com/shopforge/jobcore/relay_hook"
	"github.com/shopforge/jobcore/store"
	pgstore "github.com/shopforge/jobcore/store/postgres"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations before starting")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) error {
	provider, metricsHandler, shutdownMetrics, err := initMetrics()
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("metrics shutdown failed", slog.String("error", err.Error()))
		}
	}()

	s, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.WithLogger(log))
	if err != nil {
		return err
	}
	defer s.Close()
	if migrate {
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	limits := queue.NewManager()
	opts := []orchestrator.Option{
		orchestrator.WithConfig(cfg.Jobcore()),
		orchestrator.WithLogger(log),
		orchestrator.WithLimits(limits),
		orchestrator.WithMeterProvider(provider),
		orchestrator.WithExtension(audithook.New(audithook.NewLogRecorder(log), audithook.WithLogger(log))),
	}

	if cfg.RedisURL != "" {
		redisOpts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(redisOpts)
		defer client.Close()

		q := redisqueue.New(client,
			redisqueue.WithLogger(log),
			redisqueue.WithPrefix(cfg.RedisPrefix),
			redisqueue.WithStallTimeout(cfg.Jobs.StallTimeout),
			redisqueue.WithLimits(limits),
		)
		opts = append(opts, orchestrator.WithQueue(q))

		if cfg.EventsEnabled {
			pub := relayhook.NewRedisPublisher(client, relayhook.WithChannelPrefix(cfg.RedisPrefix+"events:"))
			opts = append(opts, orchestrator.WithExtension(relayhook.New(pub)))
		}
	}

	o, err := orchestrator.New(s, nil, opts...)
	if err != nil {
		return err
	}
	if err := registerHeartbeat(o); err != nil {
		return err
	}

	if err := o.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if hb, err := ensureHeartbeat(ctx, o); err != nil {
		log.Warn("failed to schedule heartbeat", slog.String("error", err.Error()))
	} else {
		log.Info("heartbeat scheduled",
			slog.String("job_id", hb.ID.String()),
			slog.Time("scheduled_at", hb.ScheduledAt),
		)
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMux(metricsHandler, s, o),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return o.Stop(context.Background())
}

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	DurableQueue  bool   `json:"durable_queue"`
	DurableError  string `json:"durable_error,omitempty"`
	InFlightPolls int    `json:"in_flight_polls"`
}

// newMux serves /metrics and /healthz.
func newMux(metrics http.Handler, s store.Store, o *orchestrator.Orchestrator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:        "ok",
			Database:      "ok",
			DurableQueue:  o.DurableActive(),
			InFlightPolls: o.Poller().InFlight(),
		}
		if err := o.DurableError(); err != nil {
			resp.DurableError = err.Error()
		}
		code := http.StatusOK
		if err := s.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}
