package testutil

import "sync"

// FakeClock is a settable wall clock for tests. It reports epoch seconds and
// only moves when told to.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu    sync.Mutex
	start int64
	now   int64
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start int64) *FakeClock {
	return &FakeClock{start: start, now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by secs and returns the new time.
func (c *FakeClock) Advance(secs int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += secs
	return c.now
}

// Set jumps the clock to t. Going backwards is allowed; tests use it to
// simulate a board that booted without RTC sync.
func (c *FakeClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset returns the clock to its start time.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
