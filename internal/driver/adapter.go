package driver

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"rideway/internal/booking"
	"rideway/pkg/exception"
	"rideway/pkg/realtime"
)

const DefaultSampleTimeout = 5 * time.Second

// Status is the availability a driver reports to the hub.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOnTrip    Status = "on_trip"
	StatusOffline   Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOnTrip, StatusOffline:
		return true
	default:
		return false
	}
}

// Client is the part of realtime.Client the adapter relies on.
type Client interface {
	realtime.Sender
	SubscribeToMultiple(types []realtime.MessageType, h realtime.Handler) func()
}

// Config wires the adapter collaborators.
type Config struct {
	Source    LocationSource
	Scheduler realtime.Scheduler
	// SampleTimeout bounds a single CurrentLocation call.
	SampleTimeout time.Duration
}

// Adapter re-emits driver status and messages as EventDriverUpdate and
// streams location samples while tracking is on.
type Adapter struct {
	client Client
	cfg    Config
	events *realtime.Emitter
	off    func()

	mu       sync.Mutex
	timer    realtime.Timer
	gen      uint64
	tracking bool
}

// New subscribes to driver status and message types on client.
func New(client Client, cfg Config) (*Adapter, error) {
	if client == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realtime.SystemScheduler()
	}
	if cfg.SampleTimeout <= 0 {
		cfg.SampleTimeout = DefaultSampleTimeout
	}
	a := &Adapter{
		client: client,
		cfg:    cfg,
		events: realtime.NewEmitter(),
	}
	a.off = client.SubscribeToMultiple(
		[]realtime.MessageType{realtime.TypeDriverStatus, realtime.TypeDriverMessage},
		a.handle,
	)
	return a, nil
}

func (a *Adapter) handle(msg *realtime.Message) {
	a.events.Emit(realtime.Event{
		Name:      realtime.EventDriverUpdate,
		Message:   msg,
		Type:      msg.Type,
		Data:      msg.Data,
		Timestamp: msg.Timestamp,
	})
}

// On registers a listener on the adapter's own events.
func (a *Adapter) On(name realtime.EventName, l realtime.Listener) func() {
	return a.events.On(name, l)
}

// StartLocationTracking samples the location source every interval and sends
// each sample as a high priority driver_location message. A running poll is
// replaced.
func (a *Adapter) StartLocationTracking(interval time.Duration) error {
	if interval <= 0 {
		return exception.ErrInvalidArgument
	}
	if a.cfg.Source == nil {
		return exception.ErrDriverNilSource
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.tracking = true
	gen := a.gen
	a.timer = a.cfg.Scheduler.AfterFunc(interval, func() { a.tick(gen, interval) })
	logs.Infof("start location tracking every %s", interval)
	return nil
}

// StopLocationTracking cancels the poll.
func (a *Adapter) StopLocationTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tracking {
		logs.Info("stop location tracking")
	}
	a.stopLocked()
}

// Tracking reports whether location tracking is on.
func (a *Adapter) Tracking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracking
}

func (a *Adapter) stopLocked() {
	a.gen++
	a.tracking = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Adapter) tick(gen uint64, interval time.Duration) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SampleTimeout)
	loc, err := a.cfg.Source.CurrentLocation(ctx)
	cancel()
	if err != nil {
		logs.Warnf("sample location, err: %+v", err)
	} else {
		a.SendLocation(loc)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.timer = a.cfg.Scheduler.AfterFunc(interval, func() { a.tick(gen, interval) })
}

// SendLocation pushes one sample without waiting for the poll.
func (a *Adapter) SendLocation(loc Location) bool {
	payload := newLocationPayload(loc, a.cfg.Scheduler.Now().UnixMilli())
	return a.client.Send(realtime.TypeDriverLocation, payload, realtime.SendOptions{Priority: realtime.PriorityHigh})
}

// UpdateDriverStatus sends status as a high priority, ack-required message.
func (a *Adapter) UpdateDriverStatus(status Status) error {
	if !status.Valid() {
		return exception.ErrDriverInvalidStatus
	}
	payload := map[string]any{"status": status}
	if !a.client.Send(realtime.TypeDriverStatus, payload, realtime.SendOptions{Priority: realtime.PriorityHigh, RequiresAck: true}) {
		return exception.ErrDriverRejected
	}
	return nil
}

// MarkArrived tells the rider of bookingID that the driver is at the pickup.
func (a *Adapter) MarkArrived(bookingID string) error {
	if bookingID == "" {
		return exception.ErrBookingEmptyID
	}
	payload := map[string]any{"bookingId": bookingID, "roomId": booking.RoomID(bookingID)}
	if !a.client.Send(realtime.TypeDriverArrived, payload, realtime.SendOptions{Priority: realtime.PriorityHigh, RequiresAck: true}) {
		return exception.ErrDriverRejected
	}
	return nil
}

// SendMessage sends a chat line to the rider of bookingID.
func (a *Adapter) SendMessage(bookingID, text string) error {
	if bookingID == "" {
		return exception.ErrBookingEmptyID
	}
	if text == "" {
		return exception.ErrInvalidArgument
	}
	payload := map[string]any{"bookingId": bookingID, "roomId": booking.RoomID(bookingID), "text": text}
	if !a.client.Send(realtime.TypeDriverMessage, payload, realtime.SendOptions{Priority: realtime.PriorityNormal}) {
		return exception.ErrDriverRejected
	}
	return nil
}

// Close stops tracking and detaches the adapter from the client.
func (a *Adapter) Close() {
	a.StopLocationTracking()
	if a.off != nil {
		a.off()
		a.off = nil
	}
}
