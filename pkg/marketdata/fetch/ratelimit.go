package fetch

import (
	"sync"
	"time"
)

// Limiter is a sliding-window request admission gate. Each endpoint key owns
// an independent window; different endpoints never share a budget.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[string][]time.Time
	now     func() time.Time
}

// NewLimiter admits at most limit requests per endpoint within the trailing window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow prunes timestamps older than the window, then admits and records the
// request if the remaining count is below the limit.
func (l *Limiter) Allow(endpoint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.history[endpoint][:0]
	for _, ts := range l.history[endpoint] {
		if now.Sub(ts) < l.window {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= l.limit {
		l.history[endpoint] = valid
		return false
	}
	l.history[endpoint] = append(valid, now)
	return true
}

// Stats reports the in-window request count per endpoint.
func (l *Limiter) Stats() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	stats := make(map[string]int, len(l.history))
	for endpoint, timestamps := range l.history {
		count := 0
		for _, ts := range timestamps {
			if now.Sub(ts) < l.window {
				count++
			}
		}
		stats[endpoint] = count
	}
	return stats
}
