// Package ratelimit throttles expensive operations per client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/speedctl/internal/clock"
)

// Limiter manages fixed-window token buckets keyed by client.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter allowing limit events per interval for each key.
// A nil clock uses the system time.
func NewLimiter(limit int, interval time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    c,
		buckets:  make(map[string]*bucket),
	}
}

// Allow reports whether one more event for key fits in the current window.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether n events for key fit in the current window and
// consumes them if so.
func (l *Limiter) AllowN(key string, n int) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.buckets[key] = b
	}

	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Reset clears the bucket for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// CleanupExpired removes buckets that have not been refilled within maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup runs CleanupExpired every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}
