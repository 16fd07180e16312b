// Package ratelimit paces outbound calls per source with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// Limiter manages one token bucket per key (a source name such as "github").
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	limit    rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum spacing between calls for one key. Zero or
	// negative disables pacing.
	Interval time.Duration
	// Burst defaults to 1, so the first call is immediate and the rest are spaced.
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: cfg.Interval,
		limit:    limit,
		burst:    burst,
	}
}

// Interval returns the configured spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the key may issue another call, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if key == "" {
		key = "unknown"
	}
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, duration)
	}
	return nil
}
