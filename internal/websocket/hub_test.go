package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWS(hub, conn, nil)
	}))
	t.Cleanup(srv.Close)

	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestHub_GreetsNewClient(t *testing.T) {
	_, srv := newFeedServer(t)
	conn := dial(t, srv)

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeConnection, env.Type)
	assert.NotEmpty(t, env.Timestamp)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, srv := newFeedServer(t)

	first := dial(t, srv)
	second := dial(t, srv)
	readEnvelope(t, first)
	readEnvelope(t, second)

	hub.BroadcastEvent(TypeViolation, map[string]string{
		"domain": "pirate.example.com",
		"reason": "unauthorized domain",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, TypeViolation, env.Type)

		data, ok := env.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "pirate.example.com", data["domain"])
	}
}

func TestHub_ClientDisconnectIsHandled(t *testing.T) {
	hub, srv := newFeedServer(t)

	conn := dial(t, srv)
	readEnvelope(t, conn)
	conn.Close()

	// Broadcasting after a disconnect must not panic or block
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.BroadcastEvent(TypeUsage, map[string]string{"domain": "a.example"})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after client disconnect")
	}
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWS(hub, conn, nil)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	readEnvelope(t, conn)

	hub.Stop()

	// The server closes the connection; the next read fails
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// Stop is idempotent and post-stop broadcasts are swallowed
	hub.Stop()
	hub.BroadcastEvent(TypeUsage, nil)
}

func TestHub_StartTwiceIsNoOp(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Start()
	hub.Stop()
}
