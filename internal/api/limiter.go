package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one token bucket per method so a burst of history loads
// cannot starve the calls made during a cold start.
type limiterPool struct {
	mutex sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst < 1 {
		burst = 1
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(method string) *rate.Limiter {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if l, ok := p.m[method]; ok {
		return l
	}

	limit := rate.Inf
	if p.rps > 0 {
		limit = rate.Limit(p.rps)
	}
	l := rate.NewLimiter(limit, p.burst)
	p.m[method] = l
	return l
}
