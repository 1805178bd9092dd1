package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of taking one token for a key.
type Decision struct {
	Allowed    bool
	Limit      float64
	Remaining  float64
	ResetAfter time.Duration
}

// Store keeps token bucket state per key. MemoryStore serves a single
// instance; RedisStore shares buckets between instances.
type Store interface {
	Take(ctx context.Context, key string, capacity, refillRate float64) (Decision, error)
	Reset(ctx context.Context, key string) error
	Close() error
}
