// Package ratelimit implements fixed-window write caps keyed by caller.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store counts hits per key inside a window that opens on the first hit.
type Store interface {
	// Hit increments the counter for key and returns the new count together with
	// the time left until the window closes.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	store Store
}

func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow records one hit for key and reports whether it fits in limit hits per window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	count, ttl, err := l.store.Hit(ctx, key, window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit hit: %w", err)
	}

	if count > int64(limit) {
		if ttl <= 0 {
			ttl = window
		}
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}
