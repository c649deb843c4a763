package console

import (
	"sync"
	"time"
)

// LockoutFor returns how long new sessions are refused after the given
// number of consecutive authentication failures.
func LockoutFor(failures int) time.Duration {
	switch {
	case failures >= 10:
		return 5 * time.Minute
	case failures >= 5:
		return 30 * time.Second
	case failures >= 3:
		return 5 * time.Second
	default:
		return 0
	}
}

// Guard counts authentication failures for brute-force protection. One Guard
// is shared by every connection to a console.
type Guard struct {
	mu       sync.Mutex
	failures int
	last     time.Time
	now      func() time.Time
}

// NewGuard returns a Guard with no recorded failures.
func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// Remaining returns how long the console stays locked, or zero.
func (g *Guard) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	lockout := LockoutFor(g.failures)
	if lockout == 0 {
		return 0
	}
	left := lockout - g.now().Sub(g.last)
	if left < 0 {
		return 0
	}
	return left
}

// Fail records an authentication failure.
func (g *Guard) Fail() {
	g.mu.Lock()
	g.failures++
	g.last = g.now()
	g.mu.Unlock()
}

// Succeed clears the failure count.
func (g *Guard) Succeed() {
	g.mu.Lock()
	g.failures = 0
	g.mu.Unlock()
}

// Failures returns the consecutive failure count.
func (g *Guard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
