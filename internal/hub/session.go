package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
	"go.uber.org/atomic"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
)

// session is one accepted websocket. Reads and writes each run in their own
// goroutine; gorilla allows one concurrent writer.
type session struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	writeCh chan []byte
	done    chan struct{}
	closed  *atomic.Bool
}

func newSession(userID string, conn *websocket.Conn) *session {
	return &session{
		ID:      uuid.NewString(),
		UserID:  userID,
		conn:    conn,
		writeCh: make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		closed:  atomic.NewBool(false),
	}
}

// send queues a frame. It reports false when the session is gone or its
// buffer is full.
func (s *session) send(frame []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.writeCh <- frame:
		return true
	case <-s.done:
		return false
	default:
		logs.Warnf("session %s send buffer full, drop frame", s.ID)
		return false
	}
}

func (s *session) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

func (s *session) processWrite() {
	defer s.conn.Close()
	defer s.close()
	for {
		select {
		case <-s.done:
			deadline := time.Now().Add(writeWait)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"), deadline)
			return
		case frame := <-s.writeCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logs.Warnf("write session %s, err: %+v", s.ID, err)
				return
			}
		}
	}
}

func (s *session) processRead(handle func(*session, []byte)) {
	defer s.close()
	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Warnf("read session %s, err: %+v", s.ID, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(s, payload)
	}
}
