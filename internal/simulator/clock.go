package simulator

import (
	"sync"
	"time"
)

// Clock is the time source driving a simulation
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses wall-clock time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// VirtualClock advances instantly: every After moves the clock forward by d
// and fires immediately, so a simulation runs to completion without sleeping.
type VirtualClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	waits int
}

// NewVirtualClock creates a virtual clock starting at start
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{start: start, now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits++
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Elapsed returns the virtual time consumed so far
func (c *VirtualClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Waits returns how many times After was called
func (c *VirtualClock) Waits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waits
}
