package service

import (
	"context"
	"time"

	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/logger"
	"go.uber.org/zap"
)

type expiredTokenDeleter interface {
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
	DeleteExpiredRecoveryTokens(ctx context.Context, before time.Time) (int64, error)
}

var _ expiredTokenDeleter = (*db.Postgres)(nil)

// Sweeper periodically deletes expired refresh and recovery tokens. Expired
// rows are already inert, so it runs alongside live traffic.
type Sweeper struct {
	store    expiredTokenDeleter
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store expiredTokenDeleter, interval string) (*Sweeper, error) {
	d, err := parseDuration(interval, time.Hour)
	if err != nil {
		return nil, ErrMisconfigured
	}
	return &Sweeper{store: store, interval: d, now: time.Now}, nil
}

// SweepResult counts deleted rows per token kind.
type SweepResult struct {
	RefreshTokens  int64
	RecoveryTokens int64
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	n, err := s.store.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		return res, err
	}
	res.RefreshTokens = n
	sweptTokensTotal.WithLabelValues("refresh").Add(float64(n))

	n, err = s.store.DeleteExpiredRecoveryTokens(ctx, now)
	if err != nil {
		return res, err
	}
	res.RecoveryTokens = n
	sweptTokensTotal.WithLabelValues("recovery").Add(float64(n))

	return res, nil
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("sweeper"))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("sweep failed", logger.Err(err))
				continue
			}
			log.Debug("sweep finished",
				zap.Int64("refresh_tokens", res.RefreshTokens),
				zap.Int64("recovery_tokens", res.RecoveryTokens),
			)
		}
	}
}
