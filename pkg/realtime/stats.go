package realtime

import (
	"time"

	"go.uber.org/atomic"
)

// Stats collects client counters and heartbeat latency.
type Stats struct {
	sent        atomic.Uint64
	received    atomic.Uint64
	queued      atomic.Uint64
	dropped     atomic.Uint64
	expired     atomic.Uint64
	acked       atomic.Uint64
	retried     atomic.Uint64
	timedOut    atomic.Uint64
	writeErrors atomic.Uint64
	malformed   atomic.Uint64
	reconnects  atomic.Uint64

	latency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// StatsSnapshot captures the current counter values.
type StatsSnapshot struct {
	Sent        uint64
	Received    uint64
	Queued      uint64
	Dropped     uint64
	Expired     uint64
	Acked       uint64
	Retried     uint64
	TimedOut    uint64
	WriteErrors uint64
	Malformed   uint64
	Reconnects  uint64
	Latency     LatencySnapshot
}

// Snapshot returns a copy of the current values.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		Sent:        s.sent.Load(),
		Received:    s.received.Load(),
		Queued:      s.queued.Load(),
		Dropped:     s.dropped.Load(),
		Expired:     s.expired.Load(),
		Acked:       s.acked.Load(),
		Retried:     s.retried.Load(),
		TimedOut:    s.timedOut.Load(),
		WriteErrors: s.writeErrors.Load(),
		Malformed:   s.malformed.Load(),
		Reconnects:  s.reconnects.Load(),
		Latency:     s.latency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	l.count.Inc()
	l.sum.Add(nanos)

	for {
		min := l.min.Load()
		if min != 0 && nanos >= min {
			break
		}
		if l.min.CompareAndSwap(min, nanos) {
			break
		}
	}

	for {
		max := l.max.Load()
		if nanos <= max {
			break
		}
		if l.max.CompareAndSwap(max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load()),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}
