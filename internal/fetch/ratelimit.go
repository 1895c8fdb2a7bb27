package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// domainLimiter hands out one token-bucket limiter per registered domain so
// bursts against a single host are spread out even when the global
// concurrency gate would admit them all at once.
type domainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perRate  rate.Limit
}

func newDomainLimiter(rps float64) *domainLimiter {
	if rps <= 0 {
		return nil
	}
	return &domainLimiter{
		limiters: make(map[string]*rate.Limiter),
		perRate:  rate.Limit(rps),
	}
}

// Wait blocks until the domain's bucket releases a token or ctx is done. A
// nil limiter admits everything immediately.
func (l *domainLimiter) Wait(ctx context.Context, domain string) error {
	if l == nil || domain == "" {
		return nil
	}
	l.mu.Lock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(l.perRate, 1)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()
	return limiter.Wait(ctx)
}
