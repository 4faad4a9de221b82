// Package ratelimit serializes calls to a quota-limited upstream.
//
// A Limiter enforces a minimum spacing between granted requests and a
// forward-only cooldown deadline that every caller honours, including
// callers already waiting inside Acquire.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultInterval keeps dispatch under 10 requests per minute.
	DefaultInterval = 6 * time.Second
	// DefaultCooldown is the global pause imposed after a hard rate-limit hit.
	DefaultCooldown = 60 * time.Second

	// maxSleep bounds a single wait so cancellation and cooldowns set by
	// other callers are noticed promptly.
	maxSleep = 200 * time.Millisecond
)

// Limiter is safe for concurrent use.
type Limiter struct {
	interval time.Duration
	clk      func() time.Time

	mu            sync.Mutex
	last          time.Time
	cooldownUntil time.Time
}

// New returns a Limiter granting at most one request per interval.
// A non-positive interval disables spacing; cooldowns still apply.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval, clk: time.Now}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until the cooldown deadline has passed and at least one
// interval has elapsed since the previous grant, then records the grant.
// It returns the grant time, or ctx.Err() if ctx ends first.
func (l *Limiter) Acquire(ctx context.Context) (time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}

		l.mu.Lock()
		now := l.clk()
		wait := l.cooldownUntil.Sub(now)
		if !l.last.IsZero() {
			if gap := l.last.Add(l.interval).Sub(now); gap > wait {
				wait = gap
			}
		}
		if wait <= 0 {
			l.last = now
			l.mu.Unlock()
			return now, nil
		}
		l.mu.Unlock()

		if err := sleepCtx(ctx, min(wait, maxSleep)); err != nil {
			return time.Time{}, err
		}
	}
}

// InitiateCooldown pushes the cooldown deadline to now+d. A deadline that is
// already later is kept. It returns the effective deadline.
func (l *Limiter) InitiateCooldown(d time.Duration) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.clk().Add(d)
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	return l.cooldownUntil
}

// CooldownUntil returns the current cooldown deadline; the zero time means
// no cooldown was ever set.
func (l *Limiter) CooldownUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooldownUntil
}

// Sleep pauses for d or until ctx ends. It is used for the per-worker
// backoff that must not touch the shared deadline.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
