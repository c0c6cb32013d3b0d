// Package realtimetest provides a virtual clock and an in-memory transport
// for exercising realtime clients without sockets or wall-clock waits.
package realtimetest

import (
	"sync"
	"time"

	"rideway/pkg/realtime"
)

// Clock is a realtime.Scheduler whose time only moves on Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*clockTimer
}

type clockTimer struct {
	clock *Clock
	at    time.Time
	seq   uint64
	fn    func()
	done  bool
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, fn func()) realtime.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &clockTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *clockTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	c.removeLocked(t)
	return true
}

// Advance moves the clock forward by d and runs every timer that falls due,
// in deadline order. Timers scheduled by those callbacks run too when they
// fall inside the window. Callbacks run on the calling goroutine without the
// clock lock held.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.removeLocked(next)
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.fn()
	}
}

// Pending returns the number of scheduled timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextIn returns the delay until the earliest timer, or false when none is
// scheduled.
func (c *Clock) NextIn() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.nextDueLocked(time.Time{})
	if next == nil {
		return 0, false
	}
	return next.at.Sub(c.now), true
}

// nextDueLocked returns the earliest timer due by target; a zero target
// matches any timer.
func (c *Clock) nextDueLocked(target time.Time) *clockTimer {
	var next *clockTimer
	for _, t := range c.timers {
		if !target.IsZero() && t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (c *Clock) removeLocked(t *clockTimer) {
	for i := range c.timers {
		if c.timers[i] == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
