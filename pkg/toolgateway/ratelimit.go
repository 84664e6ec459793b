package toolgateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces the per-call tools-per-minute cap with one
// token-bucket limiter per call id, refilling at cap/60s with a
// burst of cap — the steady-state behavior of "N executions per rolling
// minute" without keeping a sliding window per call.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cap      int
}

// NewRateLimiter builds a RateLimiter allowing up to perMinuteCap tool
// executions per call per minute.
func NewRateLimiter(perMinuteCap int) *RateLimiter {
	if perMinuteCap <= 0 {
		perMinuteCap = 20
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		cap:      perMinuteCap,
	}
}

// Allow reports whether a tool execution for callID may proceed right now.
func (r *RateLimiter) Allow(callID string) bool {
	return r.limiterFor(callID).Allow()
}

func (r *RateLimiter) limiterFor(callID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[callID]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(r.cap))
		l = rate.NewLimiter(every, r.cap)
		r.limiters[callID] = l
	}
	return l
}

// Forget drops a call's limiter state once the call ends.
func (r *RateLimiter) Forget(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, callID)
}
