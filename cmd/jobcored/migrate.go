package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	pgstore "github.com/shopforge/jobcore/store/postgres"
)

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*cfgFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.WithLogger(log))
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", slog.String("component", "migrate"))
			return nil
		},
	}
}
