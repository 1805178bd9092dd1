// Package ratelimit throttles the function endpoints with per-key token buckets.
package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/logging"
)

// Config holds configuration for the limiter. Max requests are allowed per
// Window; the bucket refills continuously at Max/Window.
type Config struct {
	Store  Store
	Window time.Duration
	Max    int
	Logger *logrus.Entry
}

// DefaultConfig returns twenty requests per minute.
func DefaultConfig() Config {
	return Config{Window: time.Minute, Max: 20}
}

// Limiter applies one bucket per key on top of a Store.
type Limiter struct {
	store      Store
	capacity   float64
	refillRate float64
	log        *logrus.Entry
}

// NewLimiter creates a limiter, defaulting to a MemoryStore.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Limiter{
		store:      store,
		capacity:   float64(cfg.Max),
		refillRate: float64(cfg.Max) / cfg.Window.Seconds(),
		log:        log,
	}
}

// Allow takes a token for key. Store failures allow the request.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	if key == "" {
		return Decision{Allowed: true, Limit: l.capacity, Remaining: l.capacity}
	}
	d, err := l.store.Take(ctx, key, l.capacity, l.refillRate)
	if err != nil {
		l.log.WithError(err).WithField("key", key).Warn("rate limit store failed; allowing request")
		return Decision{Allowed: true, Limit: l.capacity, Remaining: l.capacity}
	}
	return d
}

// Reset refills key's bucket.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Limit returns the bucket capacity.
func (l *Limiter) Limit() float64 {
	return l.capacity
}

// Close releases the store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
