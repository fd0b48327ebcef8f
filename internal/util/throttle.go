package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out successive operations by a fixed interval. The first
// Wait returns immediately; each later Wait blocks until interval has passed
// since the previous one.
type Throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewThrottle creates a Throttle with the given interval. A non-positive
// interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Interval returns the configured spacing.
func (t *Throttle) Interval() time.Duration { return t.interval }

// Wait blocks until the next operation may start or ctx is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
