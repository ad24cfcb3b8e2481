package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per user for mutation admission.
// The per-minute budget is spread into a steady refill with a burst allowing
// a short tap-tap-tap of reactions.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*rate.Limiter
	perMinute int
}

func newLimiterPool(perMinute int) *limiterPool {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &limiterPool{m: map[string]*rate.Limiter{}, perMinute: perMinute}
}

func (p *limiterPool) get(user string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[user]; ok {
		return l
	}
	burst := p.perMinute / 4
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(float64(p.perMinute)/60.0), burst)
	p.m[user] = l
	return l
}

func (p *limiterPool) Allow(user string) bool {
	return p.get(user).Allow()
}
