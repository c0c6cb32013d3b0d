package realtime

import "context"

// Conn is a minimal interface for one open connection to the hub.
// Read blocks until the next text frame and returns a *CloseError once the
// connection is gone.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Close(code CloseCode, reason string) error
}

// Credentials are handed to the Dialer on every connection attempt. The
// client never interprets or refreshes them.
type Credentials struct {
	UserID string
	Token  string
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

// Sender is the outbound surface adapters depend on.
type Sender interface {
	Send(t MessageType, data any, opt SendOptions) bool
}
