// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary string, usually "<route>:<client ip>".
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tripdesk/backoffice/internal/config"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// New builds the limiter selected by cfg.Driver. The redis driver pings the
// server once so a bad address fails at startup.
func New(ctx context.Context, cfg config.RateLimitConfig, redisCfg config.RedisConfig) (Limiter, error) {
	max, err := strconv.Atoi(strings.TrimSpace(cfg.Max))
	if err != nil || max <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_MAX %q", cfg.Max)
	}
	window, err := time.ParseDuration(strings.TrimSpace(cfg.Window))
	if err != nil || window <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW %q", cfg.Window)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryLimiter(max, window), nil
	case "redis":
		db, err := strconv.Atoi(strings.TrimSpace(redisCfg.DB))
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q", redisCfg.DB)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       db,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisLimiter(client, "rl:", max, window), nil
	default:
		return nil, fmt.Errorf("unknown RATE_LIMIT_DRIVER %q", cfg.Driver)
	}
}

func windowKey(prefix, key string, winStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

func evaluate(hits, max int64, untilReset time.Duration) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= max,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !res.Allowed {
		res.RetryAfter = untilReset
	}
	return res
}
