package driver

import "sync/atomic"

// Clock numbers driver cycles.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the driver goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first cycle is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after cycle start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next cycle number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued cycle number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
