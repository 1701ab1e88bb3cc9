package ratelimit

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter keeps per-window counters in process. Counts are not shared
// between replicas.
type MemoryLimiter struct {
	c      *gocache.Cache
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, time.Minute),
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	k := windowKey("", key, winStart)

	var hits int64
	if err := l.c.Add(k, int64(1), l.window); err == nil {
		hits = 1
	} else {
		n, err := l.c.IncrementInt64(k, 1)
		if err != nil {
			// expired between Add and Increment; start a fresh window
			l.c.Set(k, int64(1), l.window)
			n = 1
		}
		hits = n
	}

	return evaluate(hits, l.max, winStart.Add(l.window).Sub(now)), nil
}
