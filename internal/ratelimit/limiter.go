// Package ratelimit paces outgoing RPC requests.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter issues permits no faster than a fixed rate, without bursts.
// A nil *Limiter never blocks.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	now      func() time.Time
}

// New creates a Limiter allowing ratePerSec permits per second.
// A non-positive rate returns nil (unlimited).
func New(ratePerSec float64) *Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	return &Limiter{
		next:     time.Now(),
		interval: time.Duration(float64(time.Second) / ratePerSec),
		now:      time.Now,
	}
}

// Wait blocks until a permit is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	l.mu.Lock()
	now := l.now()
	if l.next.Before(now) {
		// Idle time does not accumulate into a burst.
		l.next = now
	}
	permit := l.next
	l.next = permit.Add(l.interval)
	l.mu.Unlock()

	wait := permit.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the permits per second, or 0 for a nil Limiter.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return float64(time.Second) / float64(l.interval)
}
