// Package ratelimit implements a token bucket limiter keyed by client identity.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused bucket is kept before Sweep evicts it.
const DefaultIdleTTL = 10 * time.Minute

// Limiter manages per-client token buckets.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	observer func(key string, allowed bool)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
	// Observe, when set, is called with every Allow decision.
	Observe func(key string, allowed bool)
	Now     func() time.Time
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		rate:     r,
		burst:    burst,
		idleTTL:  ttl,
		now:      now,
		observer: cfg.Observe,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	if key == "" {
		key = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = l.now()
	return b.limiter
}

// Allow reports whether the client identified by key may proceed now.
func (l *Limiter) Allow(key string) bool {
	allowed := l.get(key).AllowN(l.now(), 1)
	if l.observer != nil {
		l.observer(key, allowed)
	}
	return allowed
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.get(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Sweep drops buckets idle for longer than the configured TTL and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets on every interval tick until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.idleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
