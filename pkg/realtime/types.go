package realtime

import (
	"fmt"
	"time"
)

// MessageType is the routing key of a message.
type MessageType string

// Connection
const (
	TypeConnect     MessageType = "connect"
	TypeDisconnect  MessageType = "disconnect"
	TypeHeartbeat   MessageType = "heartbeat"
	TypeAcknowledge MessageType = "acknowledge"
)

// Presence
const (
	TypeUserJoined MessageType = "user_joined"
	TypeUserLeft   MessageType = "user_left"
	TypeUserTyping MessageType = "user_typing"
	TypeUserStatus MessageType = "user_status"
)

// Booking lifecycle
const (
	TypeBookingCreated   MessageType = "booking_created"
	TypeBookingUpdated   MessageType = "booking_updated"
	TypeBookingAssigned  MessageType = "booking_assigned"
	TypeBookingStarted   MessageType = "booking_started"
	TypeBookingCompleted MessageType = "booking_completed"
	TypeBookingCancelled MessageType = "booking_cancelled"
)

// Driver
const (
	TypeDriverLocation MessageType = "driver_location"
	TypeDriverStatus   MessageType = "driver_status"
	TypeDriverArrived  MessageType = "driver_arrived"
	TypeDriverMessage  MessageType = "driver_message"
)

// Payment
const (
	TypePaymentProcessing MessageType = "payment_processing"
	TypePaymentSuccess    MessageType = "payment_success"
	TypePaymentFailed     MessageType = "payment_failed"
)

// System and admin
const (
	TypeSystemAlert     MessageType = "system_alert"
	TypeMaintenanceMode MessageType = "maintenance_mode"
	TypeRateLimit       MessageType = "rate_limit"
	TypeAdminBroadcast  MessageType = "admin_broadcast"
	TypeEmergencyAlert  MessageType = "emergency_alert"
)

// Chat
const (
	TypeChatMessage MessageType = "chat_message"
	TypeChatTyping  MessageType = "chat_typing"
	TypeChatRead    MessageType = "chat_read"
)

// BookingTypes lists the booking lifecycle message types.
var BookingTypes = []MessageType{
	TypeBookingCreated,
	TypeBookingUpdated,
	TypeBookingAssigned,
	TypeBookingStarted,
	TypeBookingCompleted,
	TypeBookingCancelled,
}

var knownTypes = map[MessageType]struct{}{}

func init() {
	for _, t := range []MessageType{
		TypeConnect, TypeDisconnect, TypeHeartbeat, TypeAcknowledge,
		TypeUserJoined, TypeUserLeft, TypeUserTyping, TypeUserStatus,
		TypeDriverLocation, TypeDriverStatus, TypeDriverArrived, TypeDriverMessage,
		TypePaymentProcessing, TypePaymentSuccess, TypePaymentFailed,
		TypeSystemAlert, TypeMaintenanceMode, TypeRateLimit,
		TypeChatMessage, TypeChatTyping, TypeChatRead,
		TypeAdminBroadcast, TypeEmergencyAlert,
	} {
		knownTypes[t] = struct{}{}
	}
	for _, t := range BookingTypes {
		knownTypes[t] = struct{}{}
	}
}

// Known reports whether t belongs to the message vocabulary.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Priority is informational; it does not reorder the outbound path.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Quality is a coarse classification of the measured latency.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityCritical  Quality = "critical"
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal marks an intentional close; it never triggers a reconnect.
	CloseNormal CloseCode = 1000
	// CloseGoingAway is sent by a peer that is shutting down.
	CloseGoingAway CloseCode = 1001
	// CloseAbnormal is reported when the transport dropped without a close frame.
	CloseAbnormal CloseCode = 1006
)

// CloseError reports the close frame (or its absence) that ended a connection.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// Backoff defines reconnect backoff behavior.
type Backoff struct {
	// Base is the delay of the first attempt.
	Base time.Duration
	// Max caps the delay.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}
