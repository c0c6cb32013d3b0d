package realtimetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"rideway/pkg/exception"
	"rideway/pkg/realtime"
)

// DeliverTimeout bounds how long Deliver and Drop wait for the client.
var DeliverTimeout = 2 * time.Second

type frame struct {
	payload []byte
	done    chan struct{}
}

// Conn is an in-memory realtime.Conn. The test plays the hub: Deliver pushes
// frames to the client and Written returns what the client sent.
type Conn struct {
	inbound chan frame
	dropped chan struct{}
	closed  chan struct{}

	mu          sync.Mutex
	inFlight    chan struct{}
	dropErr     error
	writeErr    error
	writes      [][]byte
	closeCode   realtime.CloseCode
	closeReason string
	dropOnce    sync.Once
	closeOnce   sync.Once
}

// NewConn creates an open connection.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan frame),
		dropped: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.inFlight != nil {
		close(c.inFlight)
		c.inFlight = nil
	}
	c.mu.Unlock()

	select {
	case f := <-c.inbound:
		c.mu.Lock()
		c.inFlight = f.done
		c.mu.Unlock()
		return f.payload, nil
	case <-c.dropped:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.dropErr
	case <-c.closed:
		return nil, &realtime.CloseError{Code: realtime.CloseNormal, Reason: "closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Write(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), payload...))
	return nil
}

func (c *Conn) Close(code realtime.CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// Deliver hands payload to the client and waits until the client has
// processed it, handlers included.
func (c *Conn) Deliver(payload []byte) error {
	f := frame{payload: payload, done: make(chan struct{})}
	timer := time.NewTimer(DeliverTimeout)
	defer timer.Stop()

	select {
	case c.inbound <- f:
	case <-c.closed:
		return exception.ErrWebSocketConnectionClose
	case <-timer.C:
		return exception.ErrWebSocketDeliverTimeout
	}
	select {
	case <-f.done:
		return nil
	case <-c.closed:
		return nil
	case <-timer.C:
		return exception.ErrWebSocketDeliverTimeout
	}
}

// DeliverMessage marshals msg and delivers it.
func (c *Conn) DeliverMessage(msg *realtime.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	return c.Deliver(payload)
}

// Ack delivers an acknowledgment of id.
func (c *Conn) Ack(id string) error {
	msg, err := realtime.NewMessage(time.Now(), realtime.TypeAcknowledge, realtime.AckPayload{MessageID: id}, realtime.SendOptions{Priority: realtime.PriorityHigh})
	if err != nil {
		return err
	}
	return c.DeliverMessage(msg)
}

// Drop ends the connection from the hub side with code and waits until the
// client has released it.
func (c *Conn) Drop(code realtime.CloseCode, reason string) error {
	c.dropOnce.Do(func() {
		c.mu.Lock()
		c.dropErr = &realtime.CloseError{Code: code, Reason: reason}
		c.mu.Unlock()
		close(c.dropped)
	})
	select {
	case <-c.closed:
		return nil
	case <-time.After(DeliverTimeout):
		return exception.ErrWebSocketDeliverTimeout
	}
}

// FailWrites makes every later Write return err. A nil err restores writes.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Written decodes every frame the client wrote, in order.
func (c *Conn) Written() []realtime.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Message, 0, len(c.writes))
	for _, w := range c.writes {
		var msg realtime.Message
		if err := json.Unmarshal(w, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// WrittenOfType filters Written by message type.
func (c *Conn) WrittenOfType(t realtime.MessageType) []realtime.Message {
	var out []realtime.Message
	for _, msg := range c.Written() {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

// Closed reports whether Close was called, with its code and reason.
func (c *Conn) Closed() (bool, realtime.CloseCode, string) {
	select {
	case <-c.closed:
	default:
		return false, 0, ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return true, c.closeCode, c.closeReason
}
