package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swipeless/payment-relay/internal/adapter/repository/postgres"
	"github.com/swipeless/payment-relay/internal/config"
	"github.com/swipeless/payment-relay/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the session_records table in the configured Postgres database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate requires store.backend %q, got %q", config.BackendPostgres, cfg.Store.Backend)
			}

			logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			db, err := postgres.NewDB(cfg.Store.PostgresDSN)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}
