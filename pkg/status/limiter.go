package status

import (
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	period  time.Duration
	now     func() time.Time
	windows map[string]window
}

func NewRateLimiter(period time.Duration) *RateLimiter {
	if period <= 0 {
		period = time.Minute
	}
	return &RateLimiter{period: period, now: time.Now, windows: make(map[string]window)}
}

// Allow reports whether key may make another request. A limit of zero or
// less disables limiting.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.windows[key]
	if now.After(w.reset) {
		w = window{reset: now.Add(rl.period)}
		rl.prune(now)
	}
	if w.count >= limit {
		return false
	}
	w.count++
	rl.windows[key] = w
	return true
}

// prune drops expired windows. Callers hold mu.
func (rl *RateLimiter) prune(now time.Time) {
	for k, w := range rl.windows {
		if now.After(w.reset) {
			delete(rl.windows, k)
		}
	}
}

// Keys returns the number of clients currently tracked.
func (rl *RateLimiter) Keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
