package realtime

import (
	"time"

	"github.com/yanun0323/logs"
)

// ClassifyLatency maps a round trip to a connection quality.
func ClassifyLatency(latency time.Duration) Quality {
	switch {
	case latency < 100*time.Millisecond:
		return QualityExcellent
	case latency < 300*time.Millisecond:
		return QualityGood
	case latency < time.Second:
		return QualityPoor
	default:
		return QualityCritical
	}
}

func (c *Client) startHeartbeatLocked() {
	c.stopHeartbeatLocked()
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	gen := c.heartbeatGen
	c.heartbeatTimer = c.sched.AfterFunc(c.cfg.HeartbeatInterval, func() { c.heartbeatTick(gen) })
}

func (c *Client) stopHeartbeatLocked() {
	c.heartbeatGen++
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
}

func (c *Client) heartbeatTick(gen uint64) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.heartbeatGen || c.conn == nil {
		return
	}

	now := c.sched.Now()
	msg, err := NewMessage(now, TypeHeartbeat, HeartbeatPayload{Timestamp: now.UnixMilli()}, SendOptions{Priority: PriorityLow})
	if err != nil {
		logs.Errorf("build heartbeat, err: %+v", err)
		return
	}
	msg.UserID = c.userID
	c.transmitLocked(msg)

	c.heartbeatTimer = c.sched.AfterFunc(c.cfg.HeartbeatInterval, func() { c.heartbeatTick(gen) })
}

// observeHeartbeatLocked derives the latency from the timestamp echoed in the
// frame, falling back to the envelope timestamp.
func (c *Client) observeHeartbeatLocked(msg *Message, now time.Time) {
	var hb HeartbeatPayload
	if err := msg.Decode(&hb); err != nil {
		logs.Warnf("decode heartbeat %s, err: %+v", msg.ID, err)
	}
	sentAt := hb.Timestamp
	if sentAt == 0 {
		sentAt = msg.Timestamp
	}
	if sentAt == 0 {
		return
	}

	latency := now.Sub(time.UnixMilli(sentAt))
	if latency < 0 {
		latency = 0
	}
	quality := ClassifyLatency(latency)
	c.latency.Store(latency)
	c.quality.Store(string(quality))
	c.stats.latency.Observe(latency)
	c.emitLocked(Event{Name: EventLatencyUpdate, Latency: latency, Quality: quality})
}
