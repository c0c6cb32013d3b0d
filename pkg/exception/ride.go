package exception

import "github.com/yanun0323/errors"

var (
	ErrBookingEmptyID     = errors.New("booking: empty booking id")
	ErrBookingRejected    = errors.New("booking: message rejected")
	ErrBookingUnknownType = errors.New("booking: not a booking lifecycle type")
)

var (
	ErrDriverNilSource     = errors.New("driver: nil location source")
	ErrDriverInvalidStatus = errors.New("driver: invalid status")
	ErrDriverRejected      = errors.New("driver: message rejected")
)

var (
	ErrJournalNilDB       = errors.New("journal: nil db")
	ErrJournalQueueFull   = errors.New("journal: queue full")
	ErrJournalQueueClosed = errors.New("journal: queue closed")
)

var (
	ErrConfigMissingURL = errors.New("config: missing hub url")
)
