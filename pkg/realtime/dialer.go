package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"rideway/pkg/exception"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
)

// WebsocketDialer dials the hub with gorilla/websocket. The token travels in
// the Authorization header unless LegacyQueryAuth is set.
type WebsocketDialer struct {
	URL string
	// LegacyQueryAuth puts userId and token in the query string for hubs that
	// cannot read handshake headers.
	LegacyQueryAuth  bool
	HandshakeTimeout time.Duration
	Header           http.Header
}

// NewWebsocketDialer returns a dialer for the hub endpoint rawURL.
func NewWebsocketDialer(rawURL string) *WebsocketDialer {
	return &WebsocketDialer{
		URL:              rawURL,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	if d == nil {
		return nil, exception.ErrNilDialer
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse hub url")
	}

	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	if d.LegacyQueryAuth {
		q := u.Query()
		q.Set("userId", creds.UserID)
		q.Set("token", creds.Token)
		u.RawQuery = q.Encode()
	} else {
		header.Set("X-User-Id", creds.UserID)
		if creds.Token != "" {
			header.Set("Authorization", "Bearer "+creds.Token)
		}
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, errors.Wrap(err, fmt.Sprintf("dial hub, status: %d", status)).With("url", redactURL(u))
	}
	return &wsConn{conn: conn}, nil
}

// redactURL hides the token so the address can be logged.
func redactURL(u *url.URL) string {
	c := *u
	q := c.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		c.RawQuery = q.Encode()
	}
	c.User = nil
	return c.String()
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := setDeadline(ctx, c.conn.SetReadDeadline); err != nil {
			return nil, err
		}
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return nil, toCloseError(err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return payload, nil
	}
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := setDeadline(ctx, c.conn.SetWriteDeadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close(code CloseCode, reason string) error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(int(code), reason),
		time.Now().Add(closeWriteTimeout),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func toCloseError(err error) error {
	if ce, ok := err.(*websocket.CloseError); ok {
		return &CloseError{Code: CloseCode(ce.Code), Reason: ce.Text}
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}
