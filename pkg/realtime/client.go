package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"go.uber.org/atomic"

	"rideway/pkg/exception"
)

// ConnectionState is a point-in-time view of the connection.
type ConnectionState struct {
	IsConnected        bool
	IsReconnecting     bool
	LastConnected      time.Time
	ConnectionAttempts int
	Latency            time.Duration
	Quality            Quality
}

// Client owns one logical connection to the hub: reconnection, heartbeat,
// offline queue, acknowledgments and inbound dispatch.
//
// Every state change happens under mu. Events and handlers produced while
// holding mu are collected in outbox and run after it is released, one at a
// time and in state-change order, so callbacks may call back into the client.
type Client struct {
	cfg     Config
	sched   Scheduler
	backoff Backoff

	events   *Emitter
	registry registry
	stats    Stats

	connected     atomic.Bool
	reconnecting  atomic.Bool
	attempts      atomic.Int32
	lastConnected atomic.Time
	latency       atomic.Duration
	quality       atomic.String

	mu          sync.Mutex
	outbox      []func()
	callbacks   serial
	userID      string
	token       string
	conn        Conn
	connCancel  context.CancelFunc
	connecting  bool
	manualClose bool

	reconnectTimer Timer
	reconnectGen   uint64
	heartbeatTimer Timer
	heartbeatGen   uint64

	queue        *OfflineQueue
	draining     bool
	drainPending []*Message
	drainTimer   Timer
	drainGen     uint64

	acks *AckTracker
}

// NewClient validates cfg and builds a disconnected client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Dialer == nil {
		return nil, exception.ErrNilDialer
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		sched:   cfg.Scheduler,
		backoff: cfg.Backoff(),
		events:  NewEmitter(),
		queue:   NewOfflineQueue(cfg.MaxOfflineMessages),
		acks:    NewAckTracker(cfg.MaxAckRetries),
	}
	c.quality.Store(string(QualityExcellent))
	return c, nil
}

// Connect opens the connection for userID. A failed dial emits EventError and
// is not retried.
func (c *Client) Connect(ctx context.Context, userID, token string) error {
	if c == nil {
		return exception.ErrNilInstance
	}
	if userID == "" {
		return exception.ErrEmptyUserID
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return exception.ErrAlreadyConnected
	}
	if c.connecting {
		c.mu.Unlock()
		return exception.ErrConnectInProgress
	}
	c.connecting = true
	c.manualClose = false
	c.userID, c.token = userID, token
	c.cancelReconnectLocked()
	c.mu.Unlock()

	conn, err := c.cfg.Dialer.Dial(ctx, Credentials{UserID: userID, Token: token})

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		logs.Errorf("connect %s, err: %+v", userID, err)
		c.emitLocked(Event{Name: EventError, Err: err})
		c.unlock()
		return errors.Wrap(err, "connect")
	}
	if c.manualClose {
		c.unlock()
		_ = conn.Close(CloseNormal, "client disconnect")
		return exception.ErrConnectionClose
	}
	c.openLocked(conn)
	c.unlock()
	return nil
}

// Disconnect closes the connection intentionally. It cancels the heartbeat and
// any scheduled reconnect; pending acknowledgments keep their timers.
func (c *Client) Disconnect() error {
	if c == nil {
		return exception.ErrNilInstance
	}
	c.mu.Lock()
	c.manualClose = true
	c.cancelReconnectLocked()
	c.stopHeartbeatLocked()
	conn := c.conn
	if conn == nil {
		c.unlock()
		return nil
	}
	c.closeLocked(CloseNormal, "client disconnect")
	c.unlock()

	if err := conn.Close(CloseNormal, "client disconnect"); err != nil {
		return errors.Wrap(err, "close connection")
	}
	return nil
}

// Close disconnects and stops every pending acknowledgment timer.
func (c *Client) Close() error {
	err := c.Disconnect()
	if c == nil {
		return err
	}
	c.mu.Lock()
	c.acks.Reset()
	c.unlock()
	return err
}

// Send builds a message from t and data and submits it. It reports whether
// the message was transmitted or queued.
func (c *Client) Send(t MessageType, data any, opt SendOptions) bool {
	if c == nil {
		return false
	}
	msg, err := NewMessage(c.sched.Now(), t, data, opt)
	if err != nil {
		logs.Errorf("build %s message, err: %+v", t, err)
		return false
	}

	c.mu.Lock()
	defer c.unlock()
	msg.UserID = c.userID
	return c.queueLocked(msg, false)
}

// QueueMessage submits a prebuilt message.
func (c *Client) QueueMessage(msg *Message) bool {
	if c == nil || msg == nil {
		return false
	}
	c.mu.Lock()
	defer c.unlock()
	return c.queueLocked(msg, false)
}

// Subscribe registers h for inbound messages of type t.
func (c *Client) Subscribe(t MessageType, h Handler) func() {
	return c.registry.subscribe(t, h)
}

// SubscribeToMultiple registers h for every type in types. The returned
// function removes all of them.
func (c *Client) SubscribeToMultiple(types []MessageType, h Handler) func() {
	return c.registry.subscribeMany(types, h)
}

// On registers a lifecycle listener.
func (c *Client) On(name EventName, l Listener) func() {
	return c.events.On(name, l)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState{
		IsConnected:        c.connected.Load(),
		IsReconnecting:     c.reconnecting.Load(),
		LastConnected:      c.lastConnected.Load(),
		ConnectionAttempts: int(c.attempts.Load()),
		Latency:            c.latency.Load(),
		Quality:            Quality(c.quality.Load()),
	}
}

// Stats returns the client counters.
func (c *Client) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// UserID returns the user of the last Connect call.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// PendingAcks returns the number of messages awaiting acknowledgment.
func (c *Client) PendingAcks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks.Len()
}

// OfflineQueueLen returns the number of queued outbound messages.
func (c *Client) OfflineQueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// ClearOfflineQueue drops every queued message and returns how many were dropped.
func (c *Client) ClearOfflineQueue() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.queue.Len()
	c.queue.Clear()
	return n
}

func (c *Client) openLocked(conn Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCancel = cancel
	c.attempts.Store(0)
	c.connected.Store(true)
	c.reconnecting.Store(false)
	c.lastConnected.Store(c.sched.Now())
	logs.Infof("connected as %s", c.userID)

	go c.readLoop(ctx, conn)
	c.startHeartbeatLocked()
	c.startDrainLocked()
	c.emitLocked(Event{Name: EventConnected})
}

func (c *Client) closeLocked(code CloseCode, reason string) {
	c.conn = nil
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	c.connected.Store(false)
	c.stopHeartbeatLocked()
	c.stopDrainLocked()
	logs.Infof("disconnected %s, code: %d, reason: %s", c.userID, code, reason)
	c.emitLocked(Event{Name: EventDisconnected, Code: code, Reason: reason})
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(conn, payload)
	}
}

func (c *Client) handleClose(conn Conn, err error) {
	code, reason := CloseAbnormal, ""
	if ce, ok := err.(*CloseError); ok {
		code, reason = ce.Code, ce.Reason
	} else if err != nil {
		reason = err.Error()
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.closeLocked(code, reason)
	if code != CloseNormal && !c.manualClose {
		c.scheduleReconnectLocked()
	}
	c.unlock()
	_ = conn.Close(code, reason)
}

func (c *Client) scheduleReconnectLocked() {
	if c.reconnectTimer != nil || c.connecting {
		return
	}
	attempt := int(c.attempts.Load())
	if attempt >= c.cfg.MaxReconnectAttempts {
		c.reconnecting.Store(false)
		logs.Warnf("stop reconnecting %s after %d attempts", c.userID, attempt)
		c.emitLocked(Event{Name: EventReconnectFailed, Attempt: attempt, Err: exception.ErrReconnectExhausted})
		return
	}

	attempt++
	c.attempts.Store(int32(attempt))
	delay := c.backoff.Next(attempt)
	c.reconnecting.Store(true)
	c.reconnectGen++
	gen := c.reconnectGen
	c.reconnectTimer = c.sched.AfterFunc(delay, func() { c.reconnect(gen) })
	logs.Infof("reconnect %s in %s (attempt %d/%d)", c.userID, delay, attempt, c.cfg.MaxReconnectAttempts)
	c.emitLocked(Event{Name: EventReconnecting, Attempt: attempt, Delay: delay})
}

func (c *Client) cancelReconnectLocked() {
	c.reconnectGen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnecting.Store(false)
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.reconnectGen || c.reconnectTimer == nil {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	if c.manualClose || c.conn != nil || c.connecting {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	creds := Credentials{UserID: c.userID, Token: c.token}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	conn, err := c.cfg.Dialer.Dial(ctx, creds)
	cancel()

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		logs.Warnf("reconnect %s, err: %+v", creds.UserID, err)
		c.emitLocked(Event{Name: EventError, Err: err})
		if !c.manualClose {
			c.scheduleReconnectLocked()
		}
		c.unlock()
		return
	}
	if c.manualClose || c.conn != nil {
		c.unlock()
		_ = conn.Close(CloseNormal, "client disconnect")
		return
	}
	c.stats.reconnects.Inc()
	c.openLocked(conn)
	c.unlock()
}

// queueLocked transmits msg when connected and otherwise buffers it. A
// resubmitted message was accepted before, so losing it here is reported as a
// timeout.
func (c *Client) queueLocked(msg *Message, resubmit bool) bool {
	if msg.Expired(c.sched.Now()) {
		c.dropLocked(msg, DropExpired, resubmit)
		return false
	}
	if c.conn != nil && !c.draining {
		if c.transmitLocked(msg) {
			return true
		}
		if resubmit && msg.RequiresAck {
			c.stats.timedOut.Inc()
			c.emitLocked(Event{Name: EventMessageTimeout, Message: msg.Clone()})
		}
		return false
	}
	if !c.cfg.EnableOfflineQueue {
		c.dropLocked(msg, DropOffline, resubmit)
		return false
	}
	c.pushLocked(msg)
	c.stats.queued.Inc()
	return true
}

// transmitLocked writes msg to the open connection. A write failure is
// reported as EventMessageError and left to the caller.
func (c *Client) transmitLocked(msg *Message) bool {
	conn := c.conn
	if conn == nil {
		return false
	}
	payload, err := EncodeFrame(msg)
	if err != nil {
		c.stats.writeErrors.Inc()
		c.emitLocked(Event{Name: EventMessageError, Message: msg.Clone(), Err: errors.Wrap(err, "marshal message")})
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	err = conn.Write(ctx, payload)
	cancel()
	if err != nil {
		logs.Errorf("write %s %s, err: %+v", msg.Type, msg.ID, err)
		c.stats.writeErrors.Inc()
		c.emitLocked(Event{Name: EventMessageError, Message: msg.Clone(), Err: errors.Wrap(err, "write message")})
		return false
	}

	c.stats.sent.Inc()
	if msg.RequiresAck {
		c.trackAckLocked(msg)
	}
	c.emitLocked(Event{Name: EventMessageSent, Message: msg.Clone()})
	return true
}

func (c *Client) pushLocked(msg *Message) {
	if evicted := c.queue.Push(msg); evicted != nil {
		c.dropLocked(evicted, DropEvicted, true)
	}
}

// dropLocked discards msg. An accepted ack-required message can no longer be
// confirmed, so it is also reported as timed out.
func (c *Client) dropLocked(msg *Message, reason string, accepted bool) {
	logs.Warnf("drop %s message %s, reason: %s", msg.Type, msg.ID, reason)
	if reason == DropExpired {
		c.stats.expired.Inc()
	} else {
		c.stats.dropped.Inc()
	}
	c.emitLocked(Event{Name: EventMessageDropped, Message: msg.Clone(), Reason: reason})
	if msg.RequiresAck && accepted {
		c.stats.timedOut.Inc()
		c.emitLocked(Event{Name: EventMessageTimeout, Message: msg.Clone(), Reason: reason})
	}
}

func (c *Client) trackAckLocked(msg *Message) {
	entry := c.acks.Track(msg)
	entry.SetTimer(c.sched.AfterFunc(c.cfg.MessageTimeout, func() { c.ackTimeout(entry) }))
}

func (c *Client) ackTimeout(entry *AckEntry) {
	c.mu.Lock()
	defer c.unlock()

	msg := entry.Message()
	switch c.acks.Expire(entry) {
	case AckStateRetrying:
		c.stats.retried.Inc()
		logs.Warnf("ack timeout of %s %s, retry %d/%d", msg.Type, msg.ID, msg.RetryCount, c.cfg.MaxAckRetries)
		c.queueLocked(msg, true)
	case AckStateGivenUp:
		c.stats.timedOut.Inc()
		logs.Warnf("give up %s %s after %d retries", msg.Type, msg.ID, msg.RetryCount)
		c.emitLocked(Event{Name: EventMessageTimeout, Message: msg.Clone()})
	}
}

func (c *Client) sendAckLocked(id string) {
	msg, err := NewMessage(c.sched.Now(), TypeAcknowledge, AckPayload{MessageID: id}, SendOptions{Priority: PriorityHigh})
	if err != nil {
		logs.Errorf("build ack of %s, err: %+v", id, err)
		return
	}
	msg.UserID = c.userID
	c.transmitLocked(msg)
}

func (c *Client) handleFrame(conn Conn, payload []byte) {
	var msg Message
	if err := DecodeFrame(payload, &msg); err != nil {
		c.stats.malformed.Inc()
		logs.Warnf("drop malformed frame, err: %+v", errors.Wrap(exception.ErrMalformedFrame, err.Error()))
		return
	}

	c.mu.Lock()
	defer c.unlock()
	if c.conn != conn {
		return
	}
	c.stats.received.Inc()

	switch msg.Type {
	case TypeHeartbeat:
		c.observeHeartbeatLocked(&msg, c.sched.Now())
	case TypeAcknowledge:
		c.handleAckLocked(&msg)
	default:
		if msg.RequiresAck && msg.ID != "" {
			c.sendAckLocked(msg.ID)
		}
		if !msg.Type.Known() {
			logs.Debugf("received unknown message type %q", msg.Type)
		}
		handlers := c.registry.set.snapshot(msg.Type)
		inbound := &msg
		c.outbox = append(c.outbox, func() { dispatch(inbound, handlers) })
	}
	c.emitLocked(Event{Name: EventMessageReceived, Message: msg.Clone()})
}

func (c *Client) handleAckLocked(msg *Message) {
	var ack AckPayload
	if err := msg.Decode(&ack); err != nil || ack.MessageID == "" {
		logs.Warnf("drop ack %s without message id", msg.ID)
		return
	}
	acked, ok := c.acks.Acknowledge(ack.MessageID)
	if !ok {
		logs.Debugf("ack of unknown message %s", ack.MessageID)
		return
	}
	c.stats.acked.Inc()
	c.emitLocked(Event{Name: EventMessageAcknowledged, Message: acked.Clone()})
}

func (c *Client) emitLocked(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = c.sched.Now().UnixMilli()
	}
	c.outbox = append(c.outbox, func() { c.events.Emit(ev) })
}

// unlock releases mu and hands the callbacks collected while it was held to
// the serial queue. They are queued before mu is released, so callbacks from
// different goroutines keep the order of the state changes behind them.
func (c *Client) unlock() {
	out := c.outbox
	c.outbox = nil
	start := c.callbacks.push(out)
	c.mu.Unlock()
	if start {
		c.callbacks.run()
	}
}
