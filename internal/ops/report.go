package ops

import (
	"context"
	"strconv"
	"time"

	"github.com/yanun0323/logs"

	"rideway/pkg/realtime"
)

// StatsSource exposes client counters. *realtime.Client implements it.
type StatsSource interface {
	Stats() realtime.StatsSnapshot
	State() realtime.ConnectionState
}

// StatsReporter logs one line of client counters per interval, with the
// deltas since the previous line.
type StatsReporter struct {
	buf        [512]byte
	prev, curr realtime.StatsSnapshot
	state      realtime.ConnectionState
}

// RunReportSchedule blocks until ctx is done.
func (r *StatsReporter) RunReportSchedule(ctx context.Context, src StatsSource, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Snapshot(src)
			logs.Info(r.Line())
		}
	}
}

func (r *StatsReporter) Snapshot(src StatsSource) {
	r.prev = r.curr
	r.curr = src.Stats()
	r.state = src.State()
}

// Line formats the last snapshot.
func (r *StatsReporter) Line() string {
	line := r.buf[:0]

	line = append(line, "[CONN] connected="...)
	line = strconv.AppendBool(line, r.state.IsConnected)
	line = append(line, " attempts="...)
	line = strconv.AppendInt(line, int64(r.state.ConnectionAttempts), 10)
	line = append(line, " quality="...)
	line = append(line, string(r.state.Quality)...)

	line = append(line, "\t[MSG]"...)
	line = appendCounter(line, "sent", r.curr.Sent, r.prev.Sent)
	line = appendCounter(line, "recv", r.curr.Received, r.prev.Received)
	line = appendCounter(line, "queued", r.curr.Queued, r.prev.Queued)
	line = appendCounter(line, "dropped", r.curr.Dropped, r.prev.Dropped)
	line = appendCounter(line, "expired", r.curr.Expired, r.prev.Expired)

	line = append(line, "\t[ACK]"...)
	line = appendCounter(line, "acked", r.curr.Acked, r.prev.Acked)
	line = appendCounter(line, "retried", r.curr.Retried, r.prev.Retried)
	line = appendCounter(line, "timeout", r.curr.TimedOut, r.prev.TimedOut)

	line = append(line, "\t[LAT] n="...)
	line = strconv.AppendUint(line, r.curr.Latency.Count, 10)
	line = append(line, " avg="...)
	line = strconv.AppendInt(line, r.curr.Latency.Avg.Milliseconds(), 10)
	line = append(line, "ms max="...)
	line = strconv.AppendInt(line, r.curr.Latency.Max.Milliseconds(), 10)
	line = append(line, "ms"...)

	return string(line)
}

func appendCounter(line []byte, name string, curr, prev uint64) []byte {
	line = append(line, ' ')
	line = append(line, name...)
	line = append(line, '=')
	line = strconv.AppendUint(line, curr, 10)
	if curr >= prev {
		line = append(line, "(+"...)
		line = strconv.AppendUint(line, curr-prev, 10)
		line = append(line, ')')
	}
	return line
}
