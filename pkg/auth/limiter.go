package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per caller key (API key, or
// remote IP for unauthenticated paths). Buckets are created lazily and
// live for the process lifetime; the key space is bounded by the
// configured key sets plus client IPs.
type limiterPool struct {
	rps   rate.Limit
	burst int

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.RLock()
	l := p.buckets[key]
	p.mu.RUnlock()
	if l == nil {
		p.mu.Lock()
		if l = p.buckets[key]; l == nil {
			l = rate.NewLimiter(p.rps, p.burst)
			p.buckets[key] = l
		}
		p.mu.Unlock()
	}
	return l.Allow()
}
