package command

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultLoginAttempts = 5
	DefaultLoginWindow   = time.Minute
)

// LoginLimiter counts failed logins per email inside a sliding window.
type LoginLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewLoginLimiter(limit int, interval time.Duration) *LoginLimiter {
	return &LoginLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// fresh drops failures older than the window. Caller holds mu.
func (rl *LoginLimiter) fresh(k string) []time.Time {
	windowStart := rl.now().Add(-rl.interval)
	attempts := rl.history[k]
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(rl.history, k)
		return nil
	}
	rl.history[k] = kept
	return kept
}

// Allow reports whether another attempt for email may be checked.
func (rl *LoginLimiter) Allow(email string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.fresh(key(email))) < rl.limit
}

func (rl *LoginLimiter) Fail(email string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	k := key(email)
	rl.history[k] = append(rl.fresh(k), rl.now())
}

func (rl *LoginLimiter) Reset(email string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, key(email))
}
