package actions

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per connection. Each bucket holds
// perSecond tokens and refills continuously at perSecond tokens/second.
type RateLimiter struct {
	perSecond int
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewRateLimiter(perSecond int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &RateLimiter{
		perSecond: perSecond,
		now:       time.Now,
		buckets:   map[string]*rate.Limiter{},
	}
}

// Allow takes one token from id's bucket, reporting false if it is empty.
// A rejected call is not queued.
func (l *RateLimiter) Allow(id string) bool {
	l.mu.Lock()
	b, ok := l.buckets[id]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.perSecond), l.perSecond)
		l.buckets[id] = b
	}
	now := l.now()
	l.mu.Unlock()
	return b.AllowN(now, 1)
}

// Forget drops id's bucket.
func (l *RateLimiter) Forget(id string) {
	l.mu.Lock()
	delete(l.buckets, id)
	l.mu.Unlock()
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
