package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/inappserve/internal/observability"
)

// Keys used by the remote client.
const (
	KeyJIT   = "jit"
	KeyFetch = "fetch"
)

// Limiter manages one token bucket per key, created lazily on first access.
// Activity is reported through the injected metrics registry.
//
//	limiter := NewLimiter(Config{Capacity: 5, RefillRate: 1, Enabled: true}, metrics)
//	if !limiter.Allow(KeyJIT) {
//	    // skip the request
//	}
type Limiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // burst allowance
	RefillRate int  // tokens added per second
	Enabled    bool // whether rate limiting is active
}

// NewLimiter creates a limiter. A nil metrics registry records nothing.
func NewLimiter(config Config, metrics observability.MetricsRegistry) *Limiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Limiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether a request under key may proceed. A disabled or nil
// limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	l.metrics.IncrementRateLimitRequests(key)

	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		bucket, exists = l.buckets[key]
		if !exists {
			bucket = newTokenBucketWithClock(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[key] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits(key)
	}
	return allowed
}

// GetStats returns a snapshot of the statistics of every key. A nil limiter
// has none.
func (l *Limiter) GetStats() map[string]RateLimitStats {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]RateLimitStats, len(l.buckets))
	for key, bucket := range l.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[key] = RateLimitStats{Key: key, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// RateLimitStats contains statistics about rate limiting for a single key.
type RateLimitStats struct {
	Key     string  `json:"key"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"` // 0.0-1.0
}

func (s RateLimitStats) String() string {
	return fmt.Sprintf("%s: %d/%d hits (%.2f%%)", s.Key, s.Hits, s.Total, s.HitRate*100)
}
