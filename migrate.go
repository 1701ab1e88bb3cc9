package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/tripdesk/backoffice/internal/config"
	"github.com/tripdesk/backoffice/internal/db"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending goose migrations against the PostgreSQL database.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	initLogger(cfg)
	ctx := cmd.Context()

	cmd.Println("Connecting to database...")
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	if err := db.Migrate(ctx, pool); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
