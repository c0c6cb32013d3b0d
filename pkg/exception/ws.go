package exception

import "errors"

// WS errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrWebSocketDeliverTimeout  = errors.New("websocket: deliver timeout")
)
