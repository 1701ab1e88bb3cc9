package main

import (
	"os"

	"github.com/spf13/cobra"
)

// @title Tripdesk Back-office Identity API
// @version 1.0
// @description Account registration, login with lockout, refresh token rotation and password recovery.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command. Subcommands read their settings from
// the environment (and an optional .env file).
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backoffice",
		Short:         "Tripdesk back-office identity service",
		SilenceUsage:  true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAdminCmd())

	return cmd
}
