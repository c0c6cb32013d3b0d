package realtime

import (
	"time"

	"github.com/yanun0323/logs"
)

// EventName identifies a lifecycle event.
type EventName string

const (
	EventConnected           EventName = "connected"
	EventDisconnected        EventName = "disconnected"
	EventError               EventName = "error"
	EventMessageSent         EventName = "messageSent"
	EventMessageReceived     EventName = "messageReceived"
	EventMessageAcknowledged EventName = "messageAcknowledged"
	EventMessageTimeout      EventName = "messageTimeout"
	EventLatencyUpdate       EventName = "latencyUpdate"
	EventMessageError        EventName = "messageError"
	EventMessageDropped      EventName = "messageDropped"
	EventReconnecting        EventName = "reconnecting"
	EventReconnectFailed     EventName = "reconnectFailed"
	EventBookingUpdate       EventName = "bookingUpdate"
	EventDriverUpdate        EventName = "driverUpdate"
)

// Drop reasons carried by EventMessageDropped.
const (
	DropExpired = "expired"
	DropEvicted = "evicted"
	DropOffline = "offline"
)

// Event is the payload of a lifecycle event. Only the fields relevant to
// Name are set.
type Event struct {
	Name      EventName
	Message   *Message
	Err       error
	Code      CloseCode
	Reason    string
	Latency   time.Duration
	Quality   Quality
	Attempt   int
	Delay     time.Duration
	Type      MessageType
	Data      []byte
	Timestamp int64
}

// Listener receives lifecycle events.
type Listener func(Event)

// Emitter fans lifecycle events out to listeners. A panicking listener is
// logged and does not stop the others.
type Emitter struct {
	set listenerSet[EventName, Listener]
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// On registers l for name and returns a function that removes it.
func (e *Emitter) On(name EventName, l Listener) func() {
	if e == nil || l == nil {
		return func() {}
	}
	return e.set.add(name, l)
}

// Emit calls every listener registered for ev.Name.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	for _, l := range e.set.snapshot(ev.Name) {
		if !l.active.Load() {
			continue
		}
		callListener(ev, l.fn)
	}
}

// ListenerCount returns the number of listeners for name.
func (e *Emitter) ListenerCount(name EventName) int {
	if e == nil {
		return 0
	}
	return e.set.count(name)
}

func callListener(ev Event, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("listener of %s panicked: %v", ev.Name, r)
		}
	}()
	fn(ev)
}
