package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the instant a FixedClock starts at unless told otherwise.
var DefaultEpoch = time.UnixMilli(1_700_000_000_000).UTC()

// FixedClock is a docpack.Clock that only moves when a test advances it.
//
// Generated timestamps and evidence file names derived from it are
// reproducible, which golden comparisons depend on.
//
// Thread-safety: all methods are safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock reading t. A zero t means DefaultEpoch.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = DefaultEpoch
	}
	return &FixedClock{t: t}
}

// Now implements docpack.Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Millis is Now as epoch milliseconds.
func (c *FixedClock) Millis() int64 {
	return c.Now().UnixMilli()
}
