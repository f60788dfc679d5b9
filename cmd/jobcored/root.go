package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopforge/jobcore/internal/config"
	"github.com/shopforge/jobcore/internal/logger"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "jobcored",
		Short: "jobcored runs the background job orchestrator",
		Long: `jobcored runs the background job orchestrator of the platform.

It dispatches jobs from Postgres with a polling loop and, when a Redis URL is
configured, through a durable Redis queue with one worker group per job type.

Configuration is read from jobcore.yaml (working directory or /etc/jobcore)
or the file given with --config. Every key can be overridden with a
JOBCORE_ environment variable, for example:
    JOBCORE_DATABASE_URL        Postgres connection string (required)
    JOBCORE_REDIS_URL           Redis URL; empty runs polling only
    JOBCORE_JOBS_POLL_INTERVAL  Polling interval, e.g. 2s`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./jobcore.yaml)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newMigrateCmd(&cfgFile),
	)
	return root
}

// setup loads configuration and builds the logger shared by every command.
func setup(cfgFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}
