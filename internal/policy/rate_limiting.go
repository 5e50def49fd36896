package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused limiter is kept before being evicted
const idleTTL = 10 * time.Minute

// rateLimitingPolicy implements RateLimitingPolicy with one token bucket per key
type rateLimitingPolicy struct {
	enabled bool
	limit   rate.Limit
	burst   int

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimitingPolicy creates a rate limiting policy allowing rps requests
// per second per key with the given burst.
func NewRateLimitingPolicy(enabled bool, rps float64, burst int) RateLimitingPolicy {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitingPolicy{
		enabled:  enabled,
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
	}
}

func (p *rateLimitingPolicy) Enabled() bool {
	return p.enabled
}

func (p *rateLimitingPolicy) Name() string {
	return "rate_limiting"
}

func (p *rateLimitingPolicy) limiterFor(key string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) > idleTTL {
		for k, e := range p.limiters {
			if now.Sub(e.lastSeen) > idleTTL {
				delete(p.limiters, k)
			}
		}
		p.lastSweep = now
	}

	e, ok := p.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (p *rateLimitingPolicy) AllowRequest(key string, now time.Time) bool {
	if !p.enabled {
		return true
	}
	return p.limiterFor(key, now).AllowN(now, 1)
}

func (p *rateLimitingPolicy) GetRemainingQuota(key string, now time.Time) int {
	if !p.enabled {
		return -1 // Unlimited
	}

	p.mu.Lock()
	e, ok := p.limiters[key]
	p.mu.Unlock()
	if !ok {
		return p.burst
	}
	tokens := int(e.limiter.TokensAt(now))
	if tokens < 0 {
		return 0
	}
	return tokens
}
