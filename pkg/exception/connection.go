package exception

import "github.com/yanun0323/errors"

// Connection errors
var (
	ErrConnectionClose    = errors.New("connection closed")
	ErrAlreadyConnected   = errors.New("realtime: already connected")
	ErrConnectInProgress  = errors.New("realtime: connect in progress")
	ErrEmptyUserID        = errors.New("realtime: empty user id")
	ErrNilDialer          = errors.New("realtime: nil dialer")
	ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")
	ErrMalformedFrame     = errors.New("realtime: malformed frame")
)
