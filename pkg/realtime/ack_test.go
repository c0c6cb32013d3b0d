package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimer struct {
	stopped bool
}

func (s *stubTimer) Stop() bool {
	was := !s.stopped
	s.stopped = true
	return was
}

func TestAckTrackerAcknowledge(t *testing.T) {
	tr := NewAckTracker(3)
	timer := &stubTimer{}
	e := tr.Track(&Message{ID: "m1", RequiresAck: true})
	e.SetTimer(timer)
	require.Equal(t, AckStateSent, e.State())
	require.True(t, tr.Pending("m1"))

	msg, ok := tr.Acknowledge("m1")
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, AckStateAcknowledged, e.State())
	assert.True(t, timer.stopped)
	assert.Equal(t, 0, tr.Len())

	_, ok = tr.Acknowledge("m1")
	assert.False(t, ok, "second ack must not match")
	assert.Equal(t, AckStateUnknown, tr.Expire(e), "acknowledged entry cannot time out")
}

func TestAckTrackerRetryBound(t *testing.T) {
	tr := NewAckTracker(3)
	msg := &Message{ID: "m1", RequiresAck: true}

	for i := 1; i <= 3; i++ {
		e := tr.Track(msg)
		require.Equal(t, AckStateRetrying, tr.Expire(e))
		require.Equal(t, i, msg.RetryCount)
		require.False(t, tr.Pending("m1"))
	}

	e := tr.Track(msg)
	assert.Equal(t, AckStateGivenUp, tr.Expire(e))
	assert.Equal(t, 3, msg.RetryCount)
	assert.Equal(t, 0, tr.Len())
}

func TestAckTrackerIgnoresStaleEntry(t *testing.T) {
	tr := NewAckTracker(3)
	first := &stubTimer{}
	old := tr.Track(&Message{ID: "m1"})
	old.SetTimer(first)
	fresh := tr.Track(&Message{ID: "m1"})

	assert.True(t, first.stopped, "replaced entry timer is stopped")
	assert.Equal(t, AckStateUnknown, tr.Expire(old))
	assert.True(t, tr.Pending("m1"))
	assert.Equal(t, AckStateRetrying, tr.Expire(fresh))
}

func TestAckTrackerReset(t *testing.T) {
	tr := NewAckTracker(1)
	timers := []*stubTimer{{}, {}}
	for i, id := range []string{"a", "b"} {
		tr.Track(&Message{ID: id}).SetTimer(timers[i])
	}
	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	for _, tm := range timers {
		assert.True(t, tm.stopped)
	}
}
