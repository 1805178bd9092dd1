package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket. It refills continuously at
// refillRate tokens per second and holds at most capacity tokens.
type TokenBucket struct {
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return newTokenBucketAt(capacity, refillRate, time.Now)
}

func newTokenBucketAt(capacity, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: now(),
		now:        now,
	}
}

// Take consumes one token when available.
func (tb *TokenBucket) Take() Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	allowed := tb.tokens >= 1
	if allowed {
		tb.tokens--
	}
	return Decision{
		Allowed:    allowed,
		Limit:      tb.capacity,
		Remaining:  tb.tokens,
		ResetAfter: fullAfter(tb.capacity, tb.tokens, tb.refillRate),
	}
}

// Remaining returns the number of tokens currently available.
func (tb *TokenBucket) Remaining() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

// idle reports whether the bucket has refilled to capacity.
func (tb *TokenBucket) idle() bool {
	return tb.Remaining() >= tb.capacity
}

// refill must be called with tb.mu held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	}
	tb.lastRefill = now
}

// fullAfter returns how long until a bucket holding tokens is full again.
func fullAfter(capacity, tokens, refillRate float64) time.Duration {
	if tokens >= capacity || refillRate <= 0 {
		return 0
	}
	return time.Duration((capacity - tokens) / refillRate * float64(time.Second))
}
