package realtime

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handshake struct {
	auth  string
	user  string
	query url.Values
}

func echoServer(t *testing.T) (*httptest.Server, chan handshake) {
	t.Helper()
	seen := make(chan handshake, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs := handshake{
			auth:  r.Header.Get("Authorization"),
			user:  r.Header.Get("X-User-Id"),
			query: r.URL.Query(),
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		seen <- hs
		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebsocketDialerHeaderAuth(t *testing.T) {
	srv, seen := echoServer(t)
	d := NewWebsocketDialer(wsURL(srv))

	conn, err := d.Dial(t.Context(), Credentials{UserID: "driver-7", Token: "t0k3n"})
	require.NoError(t, err)
	defer conn.Close(CloseNormal, "done")

	hs := <-seen
	assert.Equal(t, "Bearer t0k3n", hs.auth)
	assert.Equal(t, "driver-7", hs.user)
	assert.Empty(t, hs.query.Get("token"), "token never travels in the url")

	require.NoError(t, conn.Write(t.Context(), []byte(`{"id":"1"}`)))
	payload, err := conn.Read(t.Context())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(payload))
}

func TestWebsocketDialerLegacyQueryAuth(t *testing.T) {
	srv, seen := echoServer(t)
	d := NewWebsocketDialer(wsURL(srv))
	d.LegacyQueryAuth = true

	conn, err := d.Dial(t.Context(), Credentials{UserID: "rider-1", Token: "abc"})
	require.NoError(t, err)
	defer conn.Close(CloseNormal, "done")

	hs := <-seen
	assert.Equal(t, "rider-1", hs.query.Get("userId"))
	assert.Equal(t, "abc", hs.query.Get("token"))
	assert.Empty(t, hs.auth)
}

func TestWebsocketDialerUnreachable(t *testing.T) {
	d := NewWebsocketDialer("ws://127.0.0.1:1/ws?token=leak")
	_, err := d.Dial(t.Context(), Credentials{UserID: "rider-1", Token: "secret"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestRedactURL(t *testing.T) {
	u, err := url.Parse("wss://hub.example.com/ws?userId=u1&token=secret")
	require.NoError(t, err)
	got := redactURL(u)
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "userId=u1")
}

func TestToCloseError(t *testing.T) {
	err := toCloseError(&websocket.CloseError{Code: 1001, Text: "going away"})
	ce, ok := err.(*CloseError)
	require.True(t, ok)
	assert.Equal(t, CloseGoingAway, ce.Code)

	err = toCloseError(assert.AnError)
	ce, ok = err.(*CloseError)
	require.True(t, ok)
	assert.Equal(t, CloseAbnormal, ce.Code)
}
