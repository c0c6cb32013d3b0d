package realtime

// AckState tracks the lifecycle of an ack-required message.
//
//	Sent -> Acknowledged
//	Sent -> TimedOut -> Retrying -> Sent (bounded)
//	Sent -> TimedOut -> GivenUp
type AckState uint8

const (
	AckStateUnknown AckState = iota
	AckStateSent
	AckStateAcknowledged
	AckStateTimedOut
	AckStateRetrying
	AckStateGivenUp
)

func (s AckState) String() string {
	switch s {
	case AckStateSent:
		return "sent"
	case AckStateAcknowledged:
		return "acknowledged"
	case AckStateTimedOut:
		return "timed_out"
	case AckStateRetrying:
		return "retrying"
	case AckStateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// AckEntry is one in-flight message awaiting acknowledgment.
type AckEntry struct {
	msg   *Message
	state AckState
	timer Timer
}

// Message returns the tracked message.
func (e *AckEntry) Message() *Message { return e.msg }

// State returns the current state.
func (e *AckEntry) State() AckState { return e.state }

// SetTimer attaches the timeout timer. It is stopped on acknowledgment.
func (e *AckEntry) SetTimer(t Timer) { e.timer = t }

// AckTracker holds the pending acknowledgments of one client, keyed by
// message id. It is not safe for concurrent use.
type AckTracker struct {
	entries    map[string]*AckEntry
	maxRetries int
}

// NewAckTracker creates a tracker that retries a timed out message at most
// maxRetries times.
func NewAckTracker(maxRetries int) *AckTracker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &AckTracker{
		entries:    make(map[string]*AckEntry),
		maxRetries: maxRetries,
	}
}

// Track registers msg in Sent state. A previous entry with the same id is
// replaced and its timer stopped.
func (t *AckTracker) Track(msg *Message) *AckEntry {
	if prev, ok := t.entries[msg.ID]; ok {
		prev.stop()
	}
	e := &AckEntry{msg: msg, state: AckStateSent}
	t.entries[msg.ID] = e
	return e
}

// Acknowledge moves the entry for id to Acknowledged and removes it.
func (t *AckTracker) Acknowledge(id string) (*Message, bool) {
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	e.stop()
	e.state = AckStateAcknowledged
	return e.msg, true
}

// Expire handles the timeout of e. It returns AckStateRetrying after bumping
// the retry count, AckStateGivenUp once the bound is reached, or
// AckStateUnknown when e is no longer the live entry for its id.
func (t *AckTracker) Expire(e *AckEntry) AckState {
	if e == nil || t.entries[e.msg.ID] != e || e.state != AckStateSent {
		return AckStateUnknown
	}
	delete(t.entries, e.msg.ID)
	e.timer = nil
	e.state = AckStateTimedOut
	if e.msg.RetryCount < t.maxRetries {
		e.msg.RetryCount++
		e.state = AckStateRetrying
		return e.state
	}
	e.state = AckStateGivenUp
	return e.state
}

// Pending reports whether id awaits acknowledgment.
func (t *AckTracker) Pending(id string) bool {
	_, ok := t.entries[id]
	return ok
}

// Len returns the number of pending acknowledgments.
func (t *AckTracker) Len() int {
	return len(t.entries)
}

// Reset stops every timer and forgets all entries.
func (t *AckTracker) Reset() {
	for id, e := range t.entries {
		e.stop()
		delete(t.entries, id)
	}
}

func (e *AckEntry) stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
