// Package ratelimit holds the two rate limiters of the service: Throttle,
// which paces reconcile passes triggered by scroll events, and the token
// bucket used to cap how fast API clients may mutate the pool.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket admits one request per token. It holds at most capacity
// tokens and regains refillRate of them per second.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillRate int // per second
	lastRefill time.Time
	now        func() time.Time

	hitCount   int64 // rejected
	totalCount int64
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return newTokenBucketAt(capacity, refillRate, time.Now)
}

func newTokenBucketAt(capacity, refillRate int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow attempts to consume one token from the bucket and reports whether
// one was available. Tokens are refilled from the elapsed time first.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++

	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	tb.hitCount++
	return false
}

// Stats returns how many requests were limited and how many were seen.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
