package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/embedpool/internal/observability"
)

// ClientLimiter rate limits API clients that mutate the pool.
//
// Each client (keyed by remote address) gets its own token bucket, created
// lazily on first access.
//
// Example usage:
//
//	config := Config{Capacity: 50, RefillRate: 20, Enabled: true}
//	limiter := NewClientLimiter(config, observability.NewPrometheusRegistry())
//
//	if !limiter.Allow(r.RemoteAddr) {
//	    http.Error(w, "rate limited", http.StatusTooManyRequests)
//	}
type ClientLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewClientLimiter creates a limiter with the given configuration.
func NewClientLimiter(config Config, metrics observability.MetricsRegistry) *ClientLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &ClientLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether a request from client may proceed. It always does
// when limiting is disabled.
func (cl *ClientLimiter) Allow(client string) bool {
	if !cl.config.Enabled {
		return true
	}

	cl.mu.RLock()
	bucket, exists := cl.buckets[client]
	cl.mu.RUnlock()

	if !exists {
		// Double-checked locking pattern to avoid race conditions
		cl.mu.Lock()
		bucket, exists = cl.buckets[client]
		if !exists {
			bucket = newTokenBucketAt(cl.config.Capacity, cl.config.RefillRate, cl.now)
			cl.buckets[client] = bucket
		}
		cl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		cl.metrics.IncrementRateLimitHits(client)
	}
	return allowed
}

// GetStats returns a snapshot of per-client statistics.
func (cl *ClientLimiter) GetStats() map[string]Stats {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	stats := make(map[string]Stats, len(cl.buckets))
	for client, bucket := range cl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[client] = Stats{Client: client, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// Stats describes the limiting applied to one client.
type Stats struct {
	Client  string  `json:"client"`
	Hits    int64   `json:"hits"`     // Number of rate limited requests
	Total   int64   `json:"total"`    // Total number of requests processed
	HitRate float64 `json:"hit_rate"` // Share of requests rate limited (0.0-1.0)
}

func (s Stats) String() string {
	return fmt.Sprintf("client %s: %d/%d hits (%.2f%%)", s.Client, s.Hits, s.Total, s.HitRate*100)
}
