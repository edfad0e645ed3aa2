package main

import (
	"errors"

	"github.com/spf13/cobra"

	"reqtrack/internal/config"
	"reqtrack/internal/database"
	"reqtrack/internal/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is empty")
			}
			lg := logger.New(cfg.LogLevel)
			defer lg.Sync()

			db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			lg.Infow("schema migrated")
			return nil
		},
	}
}
