package realtimetest

import (
	"context"
	"sync"

	"rideway/pkg/realtime"
)

// Dialer hands out in-memory connections and records every attempt.
type Dialer struct {
	mu    sync.Mutex
	err   error
	conns []*Conn
	creds []realtime.Credentials
}

// NewDialer creates a dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context, creds realtime.Credentials) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, creds)
	if d.err != nil {
		return nil, d.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := NewConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

// Fail makes later dials return err.
func (d *Dialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Succeed makes later dials succeed again.
func (d *Dialer) Succeed() {
	d.Fail(nil)
}

// Dials returns the number of dial attempts.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.creds)
}

// Last returns the most recent successful connection.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Creds returns the credentials of every attempt.
func (d *Dialer) Creds() []realtime.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]realtime.Credentials(nil), d.creds...)
}
