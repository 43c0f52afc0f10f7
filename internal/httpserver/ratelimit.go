package httpserver

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// senderLimiter keeps one token bucket per invitation sender.
type senderLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newSenderLimiter(limit rate.Limit, burst int) *senderLimiter {
	return &senderLimiter{limit: limit, burst: burst, limiters: make(map[string]*limiterEntry)}
}

// Allow reports whether sender may act now. Buckets idle for more than ten
// minutes are dropped on the way.
func (l *senderLimiter) Allow(sender string) bool {
	now := time.Now()
	key := strings.ToLower(sender)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.limiters {
		if now.Sub(e.seen) > 10*time.Minute {
			delete(l.limiters, k)
		}
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}
