package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideway/pkg/realtime"
)

const waitFor = 2 * time.Second

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func connect(t *testing.T, srv *httptest.Server, userID string, tune func(*realtime.Config)) *realtime.Client {
	t.Helper()
	d := realtime.NewWebsocketDialer("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	cfg := realtime.DefaultConfig(d)
	cfg.HeartbeatInterval = -1
	if tune != nil {
		tune(&cfg)
	}
	c, err := realtime.NewClient(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Connect(t.Context(), userID, "token-"+userID))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func events(c *realtime.Client, name realtime.EventName) <-chan realtime.Event {
	ch := make(chan realtime.Event, 16)
	c.On(name, func(ev realtime.Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	return ch
}

func TestHealth(t *testing.T) {
	_, srv := startHub(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRejectsAnonymous(t *testing.T) {
	_, srv := startHub(t)
	d := realtime.NewWebsocketDialer("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	_, err := d.Dial(t.Context(), realtime.Credentials{})
	require.Error(t, err)
}

func TestAcknowledgesFrames(t *testing.T) {
	h, srv := startHub(t)
	c := connect(t, srv, "rider-1", nil)
	acked := events(c, realtime.EventMessageAcknowledged)

	require.Eventually(t, func() bool { return h.Active() == 1 }, waitFor, 10*time.Millisecond)
	require.True(t, c.Send(realtime.TypeBookingCreated, map[string]any{"bookingId": "b-1"},
		realtime.SendOptions{Priority: realtime.PriorityHigh, RequiresAck: true}))

	select {
	case ev := <-acked:
		assert.Equal(t, realtime.TypeBookingCreated, ev.Message.Type)
	case <-time.After(waitFor):
		t.Fatal("no acknowledgment")
	}
	assert.Zero(t, c.PendingAcks())
}

func TestEchoesHeartbeat(t *testing.T) {
	_, srv := startHub(t)
	c := connect(t, srv, "rider-1", func(cfg *realtime.Config) {
		cfg.HeartbeatInterval = 20 * time.Millisecond
	})
	latency := events(c, realtime.EventLatencyUpdate)

	select {
	case ev := <-latency:
		assert.GreaterOrEqual(t, ev.Latency, time.Duration(0))
		assert.NotEmpty(t, ev.Quality)
	case <-time.After(waitFor):
		t.Fatal("no latency update")
	}
}

func TestRoomRelay(t *testing.T) {
	h, srv := startHub(t)
	rider := connect(t, srv, "rider-1", nil)
	driver := connect(t, srv, "driver-1", nil)

	got := make(chan *realtime.Message, 4)
	rider.Subscribe(realtime.TypeDriverMessage, func(msg *realtime.Message) { got <- msg })

	require.True(t, realtime.JoinRoom(rider, "booking_b-1"))
	require.True(t, realtime.JoinRoom(driver, "booking_b-1"))
	require.Eventually(t, func() bool { return len(h.Members("booking_b-1")) == 2 }, waitFor, 10*time.Millisecond)

	require.True(t, driver.Send(realtime.TypeDriverMessage,
		map[string]any{"roomId": "booking_b-1", "message": "outside"}, realtime.SendOptions{}))

	select {
	case msg := <-got:
		assert.Equal(t, "driver-1", msg.UserID)
		assert.JSONEq(t, `{"roomId":"booking_b-1","message":"outside"}`, string(msg.Data))
	case <-time.After(waitFor):
		t.Fatal("message not relayed")
	}

	require.True(t, realtime.LeaveRoom(rider, "booking_b-1"))
	require.Eventually(t, func() bool { return len(h.Members("booking_b-1")) == 1 }, waitFor, 10*time.Millisecond)
}

func TestPublishToRoom(t *testing.T) {
	h, srv := startHub(t)
	rider := connect(t, srv, "rider-1", nil)

	got := make(chan *realtime.Message, 1)
	rider.Subscribe(realtime.TypeBookingAssigned, func(msg *realtime.Message) { got <- msg })
	require.True(t, realtime.JoinRoom(rider, "booking_b-9"))
	require.Eventually(t, func() bool { return len(h.Members("booking_b-9")) == 1 }, waitFor, 10*time.Millisecond)

	body := `{"type":"booking_assigned","data":{"bookingId":"b-9","driverId":"d-1"},"requiresAck":true}`
	resp, err := http.Post(srv.URL+"/rooms/booking_b-9", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		Delivered int `json:"delivered"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Delivered)

	select {
	case msg := <-got:
		assert.True(t, msg.RequiresAck)
		assert.JSONEq(t, `{"bookingId":"b-9","driverId":"d-1"}`, string(msg.Data))
	case <-time.After(waitFor):
		t.Fatal("publish not delivered")
	}
}

func TestPublishRejectsBadBody(t *testing.T) {
	_, srv := startHub(t)
	resp, err := http.Post(srv.URL+"/rooms/r", "application/json", strings.NewReader(`{"data":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionRemovedOnDisconnect(t *testing.T) {
	h, srv := startHub(t)
	c := connect(t, srv, "rider-1", nil)
	require.True(t, realtime.JoinRoom(c, "room-a"))
	require.Eventually(t, func() bool { return len(h.Members("room-a")) == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, c.Disconnect())
	require.Eventually(t, func() bool { return h.Active() == 0 }, waitFor, 10*time.Millisecond)
	assert.Empty(t, h.Members("room-a"))
}

func TestPublishRejectsMalformedJSON(t *testing.T) {
	_, srv := startHub(t)
	resp, err := http.Post(srv.URL+"/rooms/r", "application/json", strings.NewReader(`{"type":`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
