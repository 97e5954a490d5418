package jquants

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces out calls to the upstream API.
type Limiter interface {
	Wait(ctx context.Context) error
}

// IntervalLimiter enforces a minimum interval between successive calls.
// It is shared by all tools of a single run, never process-wide.
type IntervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{interval: interval}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	var delay time.Duration
	if !l.last.IsZero() {
		if elapsed := now.Sub(l.last); elapsed < l.interval {
			delay = l.interval - elapsed
		}
	}
	l.last = now.Add(delay)
	l.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
