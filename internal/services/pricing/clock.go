package pricing

import (
	"sync"
	"time"
)

// Clock yields the time to expiry as a year fraction.
type Clock interface {
	TimeToExpiry() float64
}

// SessionClock maps elapsed time in a fixed-length trading session onto the
// remaining life of a contract. It reads the monotonic clock only.
type SessionClock struct {
	mu     sync.RWMutex
	start  time.Time
	length time.Duration
	term   float64
}

// NewSessionClock starts the session now. A session of length maps to term
// years of contract life.
func NewSessionClock(length time.Duration, term float64) *SessionClock {
	return &SessionClock{start: time.Now(), length: length, term: term}
}

// Restart resets the session start, used when a new registration arrives.
func (c *SessionClock) Restart() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

func (c *SessionClock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.start)
}

// Remaining never goes below zero.
func (c *SessionClock) Remaining() time.Duration {
	r := c.length - c.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

func (c *SessionClock) TimeToExpiry() float64 {
	if c.length <= 0 {
		return 0
	}
	return c.Remaining().Seconds() / c.length.Seconds() * c.term
}

// FixedClock always reports the same time to expiry.
type FixedClock float64

func (f FixedClock) TimeToExpiry() float64 { return float64(f) }
