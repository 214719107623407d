// Package ratelimit throttles chat traffic per session with token buckets.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per session id.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a limiter allowing perSec events per second per key with the
// given burst.
func New(perSec float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(perSec),
		burst:   burst,
	}
}

// Allow consumes a token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// Forget drops the bucket of a finished session.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
