package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter: fixed window (INCR + EXPIRE), shared by every replica.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		max:    int64(max),
		window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)
	redisKey := windowKey(l.prefix, key, winStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// first hit of the window owns the expiry
	if incr.Val() == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
		ttl = l.client.TTL(ctx, redisKey)
	}

	retryAfter := ttl.Val()
	if retryAfter < 0 {
		retryAfter = time.Duration(math.Ceil(l.window.Seconds())) * time.Second
	}
	return evaluate(incr.Val(), l.max, retryAfter), nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
