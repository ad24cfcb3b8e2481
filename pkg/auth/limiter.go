package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Edge-limiter defaults, sized for a family of devices behind one key. The
// per-user mutation budget lives in the gateway; this bucket only shields
// the HTTP surface from a runaway client.
const (
	defaultEdgeRPS   = 25
	defaultEdgeBurst = 50
)

// callerLimiters hands out one token bucket per caller, keyed by API key
// when present and client IP otherwise, so one misbehaving device cannot
// exhaust every family's budget.
type callerLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

func newCallerLimiters(rps float64, burst int) *callerLimiters {
	if rps <= 0 {
		rps = defaultEdgeRPS
	}
	if burst <= 0 {
		burst = defaultEdgeBurst
	}
	return &callerLimiters{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: map[string]*rate.Limiter{},
	}
}

// Allow consumes one token from the caller's bucket, creating it on first
// sight. The read lock covers the common path; bucket creation re-checks
// under the write lock.
func (c *callerLimiters) Allow(key string) bool {
	c.mu.RLock()
	l := c.buckets[key]
	c.mu.RUnlock()
	if l == nil {
		c.mu.Lock()
		if l = c.buckets[key]; l == nil {
			l = rate.NewLimiter(c.rps, c.burst)
			c.buckets[key] = l
		}
		c.mu.Unlock()
	}
	return l.Allow()
}
