package booking

import (
	"encoding/json"
	"sync"

	"github.com/yanun0323/logs"

	"rideway/pkg/exception"
	"rideway/pkg/realtime"
)

// Client is the part of realtime.Client the adapter relies on.
type Client interface {
	realtime.Sender
	SubscribeToMultiple(types []realtime.MessageType, h realtime.Handler) func()
	On(name realtime.EventName, l realtime.Listener) func()
	State() realtime.ConnectionState
}

// Update is one booking lifecycle message re-emitted as EventBookingUpdate.
type Update struct {
	Type      realtime.MessageType
	Data      json.RawMessage
	Timestamp int64
	MessageID string
}

// BookingID extracts data.bookingId, or "" when absent.
func (u Update) BookingID() string {
	var ref struct {
		BookingID string `json:"bookingId"`
	}
	if len(u.Data) == 0 || realtime.DecodeData(u.Data, &ref) != nil {
		return ""
	}
	return ref.BookingID
}

// RoomID derives the hub room of a booking.
func RoomID(bookingID string) string {
	return "booking_" + bookingID
}

// joinState tracks whether the hub knows this client is in a room.
type joinState uint8

const (
	// joinQueued: a join was submitted and has not been written yet.
	joinQueued joinState = iota + 1
	// joinSent: the join went out on the current connection.
	joinSent
	// joinStale: the hub lost the membership; join again on the next connection.
	joinStale
)

// Adapter turns booking lifecycle messages into EventBookingUpdate and keeps
// the booking rooms joined across reconnects.
type Adapter struct {
	client Client
	events *realtime.Emitter
	offs   []func()

	mu     sync.Mutex
	rooms  map[string]joinState
	online bool
}

// New subscribes to every booking lifecycle type on client.
func New(client Client) (*Adapter, error) {
	if client == nil {
		return nil, exception.ErrNilInstance
	}
	a := &Adapter{
		client: client,
		events: realtime.NewEmitter(),
		rooms:  make(map[string]joinState),
		online: client.State().IsConnected,
	}
	a.offs = append(a.offs,
		client.SubscribeToMultiple(realtime.BookingTypes, a.handle),
		client.On(realtime.EventConnected, a.onConnected),
		client.On(realtime.EventDisconnected, a.onDisconnected),
		client.On(realtime.EventMessageSent, a.onJoinSent),
		client.On(realtime.EventMessageDropped, a.onJoinDropped),
	)
	return a, nil
}

func (a *Adapter) handle(msg *realtime.Message) {
	a.events.Emit(realtime.Event{
		Name:      realtime.EventBookingUpdate,
		Message:   msg,
		Type:      msg.Type,
		Data:      msg.Data,
		Timestamp: msg.Timestamp,
	})
}

// onConnected joins again every room the hub dropped with the old connection.
// Joins still queued are flushed by the client and skipped here.
func (a *Adapter) onConnected(realtime.Event) {
	a.mu.Lock()
	a.online = true
	rooms := a.markLocked(joinStale, joinQueued)
	a.mu.Unlock()
	a.join(rooms)
}

func (a *Adapter) onDisconnected(realtime.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = false
	a.markLocked(joinSent, joinStale)
}

func (a *Adapter) onJoinSent(ev realtime.Event) {
	room, ok := joinedRoom(ev)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, tracked := a.rooms[room]; tracked {
		a.rooms[room] = joinSent
	}
}

// onJoinDropped handles a join lost from the offline queue. While online it is
// submitted again at once, otherwise on the next connection.
func (a *Adapter) onJoinDropped(ev realtime.Event) {
	room, ok := joinedRoom(ev)
	if !ok {
		return
	}
	a.mu.Lock()
	if _, tracked := a.rooms[room]; !tracked {
		a.mu.Unlock()
		return
	}
	a.rooms[room] = joinStale
	online := a.online
	if online {
		a.rooms[room] = joinQueued
	}
	a.mu.Unlock()
	if online {
		a.join([]string{room})
	}
}

// markLocked moves every room in state from to state to and returns them.
func (a *Adapter) markLocked(from, to joinState) []string {
	var rooms []string
	for room, st := range a.rooms {
		if st == from {
			a.rooms[room] = to
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func (a *Adapter) join(rooms []string) {
	for _, room := range rooms {
		if realtime.JoinRoom(a.client, room) {
			continue
		}
		logs.Warnf("join room %s rejected", room)
		a.mu.Lock()
		if _, tracked := a.rooms[room]; tracked {
			a.rooms[room] = joinStale
		}
		a.mu.Unlock()
	}
}

func joinedRoom(ev realtime.Event) (string, bool) {
	if ev.Message == nil || ev.Message.Type != realtime.TypeUserJoined {
		return "", false
	}
	var p realtime.RoomPayload
	if err := ev.Message.Decode(&p); err != nil || p.RoomID == "" {
		return "", false
	}
	return p.RoomID, true
}

// On registers a listener on the adapter's own events.
func (a *Adapter) On(name realtime.EventName, l realtime.Listener) func() {
	return a.events.On(name, l)
}

// OnUpdate registers fn for every booking update.
func (a *Adapter) OnUpdate(fn func(Update)) func() {
	return a.events.On(realtime.EventBookingUpdate, func(ev realtime.Event) {
		u := Update{Type: ev.Type, Data: ev.Data, Timestamp: ev.Timestamp}
		if ev.Message != nil {
			u.MessageID = ev.Message.ID
		}
		fn(u)
	})
}

// SubscribeToBooking joins the room of bookingID. The room is kept across
// reconnects until UnsubscribeFromBooking.
func (a *Adapter) SubscribeToBooking(bookingID string) error {
	if bookingID == "" {
		return exception.ErrBookingEmptyID
	}
	room := RoomID(bookingID)
	a.mu.Lock()
	a.rooms[room] = joinQueued
	a.mu.Unlock()
	if !realtime.JoinRoom(a.client, room) {
		a.mu.Lock()
		if _, tracked := a.rooms[room]; tracked {
			a.rooms[room] = joinStale
		}
		a.mu.Unlock()
		return exception.ErrBookingRejected
	}
	return nil
}

// UnsubscribeFromBooking leaves the room of bookingID.
func (a *Adapter) UnsubscribeFromBooking(bookingID string) error {
	if bookingID == "" {
		return exception.ErrBookingEmptyID
	}
	room := RoomID(bookingID)
	a.mu.Lock()
	delete(a.rooms, room)
	a.mu.Unlock()
	if !realtime.LeaveRoom(a.client, room) {
		return exception.ErrBookingRejected
	}
	return nil
}

// Rooms returns the booking rooms currently joined.
func (a *Adapter) Rooms() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.rooms))
	for room := range a.rooms {
		out = append(out, room)
	}
	return out
}

// Send publishes a booking lifecycle message for bookingID. The payload gets
// the bookingId and roomId fields so the hub fans it out to the room.
func (a *Adapter) Send(t realtime.MessageType, bookingID string, data map[string]any) error {
	if bookingID == "" {
		return exception.ErrBookingEmptyID
	}
	if !isBookingType(t) {
		return exception.ErrBookingUnknownType
	}
	payload := make(map[string]any, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["bookingId"] = bookingID
	payload["roomId"] = RoomID(bookingID)
	if !a.client.Send(t, payload, realtime.SendOptions{Priority: realtime.PriorityHigh, RequiresAck: true}) {
		return exception.ErrBookingRejected
	}
	return nil
}

// Close detaches the adapter from the client.
func (a *Adapter) Close() {
	for _, off := range a.offs {
		off()
	}
	a.offs = nil
}

func isBookingType(t realtime.MessageType) bool {
	for _, bt := range realtime.BookingTypes {
		if bt == t {
			return true
		}
	}
	return false
}
