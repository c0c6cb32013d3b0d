package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageDefaults(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	msg, err := NewMessage(now, TypeChatMessage, nil, SendOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, now.UnixMilli(), msg.Timestamp)
	assert.Equal(t, PriorityNormal, msg.Priority)
	assert.JSONEq(t, `{}`, string(msg.Data))
	assert.Zero(t, msg.ExpiresAt)

	other, err := NewMessage(now, TypeChatMessage, nil, SendOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestNewMessageExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	msg, err := NewMessage(now, TypeDriverStatus, map[string]string{"status": "online"}, SendOptions{
		Priority:    PriorityHigh,
		RequiresAck: true,
		ExpiresIn:   5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, now.Add(5*time.Second).UnixMilli(), msg.ExpiresAt)
	assert.False(t, msg.Expired(now.Add(5*time.Second)))
	assert.True(t, msg.Expired(now.Add(5*time.Second+time.Millisecond)))
}

func TestNewMessageRejectsInvalidRawJSON(t *testing.T) {
	_, err := NewMessage(time.Now(), TypeChatMessage, []byte("{nope"), SendOptions{})
	require.Error(t, err)
}

func TestMessageWireFormat(t *testing.T) {
	msg := &Message{
		ID:        "m1",
		Type:      TypeBookingCreated,
		Timestamp: 42,
		Data:      json.RawMessage(`{"bookingId":"b1"}`),
		Priority:  PriorityNormal,
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","type":"booking_created","timestamp":42,"data":{"bookingId":"b1"},"priority":"normal"}`, string(b))

	var payload struct {
		BookingID string `json:"bookingId"`
	}
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, "b1", payload.BookingID)
}

func TestMessageTypeKnown(t *testing.T) {
	assert.True(t, TypeEmergencyAlert.Known())
	assert.True(t, TypeBookingCancelled.Known())
	assert.False(t, MessageType("booking_teleported").Known())
}
