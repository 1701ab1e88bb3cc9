package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/tripdesk/backoffice/internal/client"
	"github.com/tripdesk/backoffice/internal/config"
	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/handler"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/ratelimit"
	"github.com/tripdesk/backoffice/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the expired token sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending migrations before serving")

	return cmd
}

func runServe(parent context.Context, autoMigrate bool) error {
	cfg := config.Load()
	initLogger(cfg)
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()

	if autoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return oops.Code("MIGRATION_FAILED").Wrap(err)
		}
	}
	store := db.NewPostgres(pool)

	mailer, err := client.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("component", "smtp").Wrap(err)
	}
	if !mailer.IsConfigured() {
		log.Warn("SMTP_HOST not set, notification emails are disabled")
	}
	notifier := service.NewNotifier(mailer)
	defer notifier.Close()

	svc, err := service.NewAuthService(store, notifier, cfg.Auth)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("component", "auth").Wrap(err)
	}
	if err := service.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	sweeper, err := service.NewSweeper(store, cfg.Auth.SweepInterval)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("component", "sweeper").Wrap(err)
	}

	limiter, err := ratelimit.New(ctx, cfg.RateLimit, cfg.Redis)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("component", "ratelimit").Wrap(err)
	}
	if closer, ok := limiter.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(svc, handler.RouterConfig{
		AllowedOrigins: cfg.App.AllowedOrigins,
		Production:     cfg.App.IsProduction(),
		Limiter:        limiter,
		Gatherer:       prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(logger.ToContext(gctx, log))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func initLogger(cfg config.Config) {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "tripdesk-backoffice",
	})
}
