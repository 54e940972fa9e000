package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a ManualClock: a school morning.
var Epoch = time.Date(2026, time.March, 2, 8, 30, 0, 0, time.UTC)

// ManualClock is a domain.Clock that only moves when told to.
//
// Unlike domain.SystemClock, ManualClock can be reset for test reuse.
// This enables the same scenario to run repeatedly with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewManualClock creates a clock reading start. A zero start means Epoch.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{start: start, now: start}
}

// Now returns the current reading, then advances it by the auto step.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t, which may be in the past.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// AutoStep makes every Now call advance the clock by d afterwards, so
// consecutive readings are distinct.
func (c *ManualClock) AutoStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Reset returns the clock to its start time and clears the auto step.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
	c.step = 0
}
