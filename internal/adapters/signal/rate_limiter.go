package signal

import (
	"sync"
	"time"

	"github.com/dkeye/atrium/internal/core"
)

// chatRateLimiter throttles chat sends per connection over a sliding
// window. A zero limit or window disables it.
type chatRateLimiter struct {
	mu      sync.Mutex
	history map[core.ConnID][]time.Time
	limit   int
	window  time.Duration
}

func newChatRateLimiter(limit int, window time.Duration) *chatRateLimiter {
	return &chatRateLimiter{
		history: make(map[core.ConnID][]time.Time),
		limit:   limit,
		window:  window,
	}
}

func (rl *chatRateLimiter) Allow(sid core.ConnID) bool {
	if rl.limit <= 0 || rl.window <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh
	return true
}

// Forget drops a connection's history once it disconnects.
func (rl *chatRateLimiter) Forget(sid core.ConnID) {
	rl.mu.Lock()
	delete(rl.history, sid)
	rl.mu.Unlock()
}
