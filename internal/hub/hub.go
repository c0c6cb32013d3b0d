package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"go.uber.org/atomic"

	"rideway/pkg/realtime"
)

// Hub is a development server for the realtime wire protocol. It echoes
// heartbeats, acknowledges frames that ask for it, tracks room membership and
// relays frames carrying data.roomId to the other members of that room.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	rooms    map[string]map[string]*session

	active   *atomic.Int32
	relayed  *atomic.Uint64
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{
		sessions: map[string]*session{},
		rooms:    map[string]map[string]*session{},
		active:   atomic.NewInt32(0),
		relayed:  atomic.NewUint64(0),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Handler returns the hub routes.
func (h *Hub) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}", h.publish).Methods(http.MethodPost)
	return r
}

// Active returns the number of open sessions.
func (h *Hub) Active() int {
	return int(h.active.Load())
}

// Relayed returns the number of frames delivered to room members.
func (h *Hub) Relayed() uint64 {
	return h.relayed.Load()
}

// Members returns the user ids currently in room.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]string, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		members = append(members, s.UserID)
	}
	return members
}

// Close drops every session with a going-away close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

// Publish sends msg to every member of room except the session with id skip.
func (h *Hub) Publish(room string, msg *realtime.Message, skip string) int {
	frame, err := realtime.EncodeFrame(msg)
	if err != nil {
		logs.Errorf("encode %s for room %s, err: %+v", msg.Type, room, err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.rooms[room]))
	for id, s := range h.rooms[room] {
		if id != skip {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.send(frame) {
			delivered++
		}
	}
	h.relayed.Add(uint64(delivered))
	return delivered
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticate(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "missing user id")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("upgrade %s, err: %+v", userID, err)
		return
	}

	s := newSession(userID, conn)
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.active.Inc()
	logs.Infof("session %s connected, user: %s", s.ID, userID)

	go s.processWrite()
	go func() {
		s.processRead(h.handleFrame)
		h.remove(s)
	}()
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	for room, members := range h.rooms {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	h.active.Dec()
	logs.Infof("session %s disconnected, user: %s", s.ID, s.UserID)
}

func (h *Hub) handleFrame(s *session, payload []byte) {
	var msg realtime.Message
	if err := realtime.DecodeFrame(payload, &msg); err != nil {
		logs.Warnf("session %s sent malformed frame, err: %+v", s.ID, err)
		return
	}

	switch msg.Type {
	case realtime.TypeHeartbeat:
		s.send(payload)
		return
	case realtime.TypeAcknowledge:
		return
	}

	if msg.RequiresAck && msg.ID != "" {
		h.ack(s, msg.ID)
	}

	var target realtime.RoomPayload
	_ = msg.Decode(&target)

	switch msg.Type {
	case realtime.TypeUserJoined:
		h.join(s, target.RoomID)
	case realtime.TypeUserLeft:
		h.leave(s, target.RoomID)
	default:
		if target.RoomID != "" {
			if msg.UserID == "" {
				msg.UserID = s.UserID
			}
			h.Publish(target.RoomID, &msg, s.ID)
		}
	}
}

func (h *Hub) ack(s *session, id string) {
	ack, err := realtime.NewMessage(h.now(), realtime.TypeAcknowledge, realtime.AckPayload{MessageID: id},
		realtime.SendOptions{Priority: realtime.PriorityHigh})
	if err != nil {
		logs.Errorf("build ack %s, err: %+v", id, err)
		return
	}
	frame, err := realtime.EncodeFrame(ack)
	if err != nil {
		logs.Errorf("encode ack %s, err: %+v", id, err)
		return
	}
	s.send(frame)
}

func (h *Hub) join(s *session, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = map[string]*session{}
		h.rooms[room] = members
	}
	members[s.ID] = s
	logs.Debugf("session %s joined %s", s.ID, room)
}

func (h *Hub) leave(s *session, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	logs.Debugf("session %s left %s", s.ID, room)
}

func (h *Hub) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.Active()})
}

// PublishRequest is the body of POST /rooms/{room}.
type PublishRequest struct {
	Type        realtime.MessageType `json:"type"`
	Data        json.RawMessage      `json:"data"`
	Priority    realtime.Priority    `json:"priority"`
	RequiresAck bool                 `json:"requiresAck"`
}

func (h *Hub) publish(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	var req PublishRequest
	if err := httpJSON.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, errors.Wrap(err, "decode body").Error())
		return
	}
	if req.Type == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing type")
		return
	}
	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	msg, err := realtime.NewMessage(h.now(), req.Type, data, realtime.SendOptions{
		Priority:    req.Priority,
		RequiresAck: req.RequiresAck,
	})
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	delivered := h.Publish(room, msg, "")
	writeJSON(w, http.StatusAccepted, map[string]any{"id": msg.ID, "delivered": delivered})
}

// authenticate reads the user id from the X-User-Id header or the legacy
// userId query parameter. Tokens are accepted unverified.
func authenticate(r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	return userID, userID != ""
}

var httpJSON = sonic.ConfigFastest

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = httpJSON.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, errorMessage string) {
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(errorMessage))
}
