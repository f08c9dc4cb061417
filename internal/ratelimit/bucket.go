package ratelimit

import (
	"math"
	"sync"
	"time"
)

// TokenBucket is a single counter refilled at a fixed rate. Refill is
// lazy: tokens are topped up from the elapsed time on each access, so no
// background timer is needed. All methods are safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(capacity, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: now,
	}
}

// refill tops the bucket up for the time elapsed since the last refill,
// capped at capacity. Caller must hold mu.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}
}

// hasTokens reports whether cost tokens are available. A cost above
// capacity can never be satisfied. Caller must hold mu.
func (b *TokenBucket) hasTokens(cost float64) bool {
	return cost <= b.capacity && b.tokens >= cost
}

// consume removes cost tokens. Caller must hold mu and have checked
// hasTokens.
func (b *TokenBucket) consume(cost float64) {
	b.tokens -= cost
}

// retryAfter returns how long until cost tokens will be available at the
// current refill rate, or zero when the cost exceeds capacity and no wait
// helps. Caller must hold mu.
func (b *TokenBucket) retryAfter(cost float64) time.Duration {
	if cost > b.capacity || b.refillRate <= 0 {
		return 0
	}
	missing := cost - b.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / b.refillRate * float64(time.Second))
}

// Take attempts to consume cost tokens, refilling first. It returns
// whether the take succeeded.
func (b *TokenBucket) Take(cost float64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if !b.hasTokens(cost) {
		return false
	}
	b.consume(cost)
	return true
}

// Remaining returns the whole tokens currently available.
func (b *TokenBucket) Remaining(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	return int(b.tokens)
}
