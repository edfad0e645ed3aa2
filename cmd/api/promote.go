package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reqtrack/internal/audit"
	"reqtrack/internal/config"
	"reqtrack/internal/database"
	"reqtrack/internal/logger"
	"reqtrack/internal/models"
	"reqtrack/internal/services"
)

// promoteCmd bootstraps the first admin. The user must have logged in once.
func promoteCmd() *cobra.Command {
	var (
		email string
		role  string
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Set a user's role directly in the database",
		Example: `  reqtrack promote --email alice@example.com
  reqtrack promote --email bob@example.com --role normal`,
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

			db, err := database.Open(cfg.DatabaseURL, 1)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			users := services.NewUsers(db, audit.NewRecorder(lg), lg)
			u, err := users.SetRole(cmd.Context(), services.Actor{Email: "cli", IP: "local"}, email, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of an existing user")
	cmd.Flags().StringVar(&role, "role", models.RoleAdmin, "role to assign (admin or normal)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
