package journal

import (
	"time"

	"rideway/internal/booking"
)

// Event is one booking update as stored in booking_events.
type Event struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	MessageID  string    `gorm:"size:64;index"`
	Type       string    `gorm:"size:32;index"`
	BookingID  string    `gorm:"size:64;index"`
	Payload    string    `gorm:"type:jsonb"`
	OccurredAt time.Time `gorm:"index"`
	RecordedAt time.Time `gorm:"autoCreateTime"`
}

func (Event) TableName() string {
	return "booking_events"
}

// NewEvent maps a booking update to its journal row.
func NewEvent(u booking.Update) Event {
	payload := string(u.Data)
	if payload == "" {
		payload = "{}"
	}
	return Event{
		MessageID:  u.MessageID,
		Type:       string(u.Type),
		BookingID:  u.BookingID(),
		Payload:    payload,
		OccurredAt: time.UnixMilli(u.Timestamp).UTC(),
	}
}
