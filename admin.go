package main

import (
	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/tripdesk/backoffice/internal/config"
	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/service"
)

// NewAdminCmd groups one-off operator tasks.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator tasks",
	}
	cmd.AddCommand(newUnlockCmd())
	cmd.AddCommand(newSweepCmd())
	return cmd
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <account-id>",
		Short: "Unlock an account locked by failed logins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return oops.Code("INVALID_ARGUMENT").With("account_id", args[0]).Wrap(err)
			}

			cfg := config.Load()
			initLogger(cfg)
			ctx := cmd.Context()

			pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}
			defer pool.Close()

			svc, err := service.NewAuthService(db.NewPostgres(pool), nil, cfg.Auth)
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			if err := svc.UnlockAccount(ctx, accountID); err != nil {
				return err
			}

			cmd.Printf("Account %s unlocked\n", accountID)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired refresh and recovery tokens once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			initLogger(cfg)
			ctx := cmd.Context()

			pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}
			defer pool.Close()

			sweeper, err := service.NewSweeper(db.NewPostgres(pool), cfg.Auth.SweepInterval)
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			res, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}

			cmd.Printf("Deleted %d refresh tokens and %d recovery tokens\n", res.RefreshTokens, res.RecoveryTokens)
			return nil
		},
	}
}
