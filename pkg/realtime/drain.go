package realtime

import "github.com/yanun0323/logs"

// startDrainLocked flushes the offline queue in FIFO order. The first message
// goes out immediately and the rest are spaced by DrainDelay. Messages
// submitted meanwhile are appended to the queue and flushed in a later pass.
func (c *Client) startDrainLocked() {
	if c.draining || c.queue.Len() == 0 {
		return
	}
	c.draining = true
	c.drainGen++
	logs.Infof("flush %d offline messages", c.queue.Len())
	c.drainStepLocked(c.drainGen)
}

func (c *Client) drainStepLocked(gen uint64) {
	if gen != c.drainGen || c.conn == nil {
		return
	}
	c.drainTimer = nil

	now := c.sched.Now()
	for {
		if len(c.drainPending) == 0 {
			if c.queue.Len() == 0 {
				c.draining = false
				return
			}
			c.drainPending = c.queue.Drain()
		}
		msg := c.drainPending[0]
		c.drainPending = c.drainPending[1:]
		if msg.Expired(now) {
			c.dropLocked(msg, DropExpired, true)
			continue
		}
		if !c.transmitLocked(msg) {
			rest := append([]*Message{msg}, c.drainPending...)
			c.drainPending = nil
			c.draining = false
			c.requeueLocked(rest)
			return
		}
		break
	}

	if len(c.drainPending) == 0 && c.queue.Len() == 0 {
		c.draining = false
		return
	}
	c.drainTimer = c.sched.AfterFunc(c.cfg.DrainDelay, func() {
		c.mu.Lock()
		defer c.unlock()
		c.drainStepLocked(gen)
	})
}

// stopDrainLocked aborts a running flush and puts the unsent messages back at
// the head of the queue.
func (c *Client) stopDrainLocked() {
	c.drainGen++
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	if !c.draining {
		return
	}
	c.draining = false
	rest := c.drainPending
	c.drainPending = nil
	c.requeueLocked(rest)
}

func (c *Client) requeueLocked(msgs []*Message) {
	if len(msgs) == 0 {
		return
	}
	if !c.cfg.EnableOfflineQueue {
		for _, msg := range msgs {
			c.dropLocked(msg, DropOffline, true)
		}
		return
	}
	tail := c.queue.Drain()
	for _, msg := range append(msgs, tail...) {
		c.pushLocked(msg)
	}
}
