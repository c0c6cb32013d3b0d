package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
)

var emptyObject = json.RawMessage(`{}`)

// Message is the wire envelope. One message is one text frame.
type Message struct {
	ID          string          `json:"id"`
	Type        MessageType     `json:"type"`
	Timestamp   int64           `json:"timestamp"`
	UserID      string          `json:"userId,omitempty"`
	Data        json.RawMessage `json:"data"`
	Priority    Priority        `json:"priority"`
	RequiresAck bool            `json:"requiresAck,omitempty"`
	ExpiresAt   int64           `json:"expiresAt,omitempty"`
	RetryCount  int             `json:"retryCount,omitempty"`
}

// SendOptions tune a single outbound message.
type SendOptions struct {
	Priority    Priority
	RequiresAck bool
	// ExpiresIn, when positive, sets ExpiresAt relative to the creation time.
	ExpiresIn time.Duration
}

// NewMessage builds a message with a fresh id. data may be a json.RawMessage,
// a []byte holding JSON, or any value json.Marshal accepts.
func NewMessage(now time.Time, t MessageType, data any, opt SendOptions) (*Message, error) {
	raw, err := encodeData(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s data", t)
	}
	priority := opt.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	msg := &Message{
		ID:          uuid.NewString(),
		Type:        t,
		Timestamp:   now.UnixMilli(),
		Data:        raw,
		Priority:    priority,
		RequiresAck: opt.RequiresAck,
	}
	if opt.ExpiresIn > 0 {
		msg.ExpiresAt = now.Add(opt.ExpiresIn).UnixMilli()
	}
	return msg, nil
}

// Expired reports whether the message deadline has passed at now.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != 0 && now.UnixMilli() > m.ExpiresAt
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := DecodeData(m.Data, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", m.Type)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Data != nil {
		c.Data = append(json.RawMessage(nil), m.Data...)
	}
	return &c
}

func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		if len(v) == 0 {
			return emptyObject, nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return emptyObject, nil
		}
		if !json.Valid(v) {
			return nil, errors.New("data is not valid json")
		}
		return json.RawMessage(v), nil
	default:
		b, err := wire.Marshal(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// AckPayload is the data of an acknowledge frame.
type AckPayload struct {
	MessageID string `json:"messageId"`
}

// HeartbeatPayload is the data of a heartbeat frame.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}
