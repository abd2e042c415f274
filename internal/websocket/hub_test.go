package websocket

import (
	"context"
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

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	viewFromQuery := func(_ http.ResponseWriter, r *http.Request) string {
		return r.URL.Query().Get("view")
	}
	srv := httptest.NewServer(hub.Handler(viewFromQuery, func(viewID string) {
		_ = hub.SendState(viewID, map[string]string{"text": "hello " + viewID})
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, view string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?view=" + view
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return kind, data
}

func TestHubSendsInitialState(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "a")

	kind, data := readMessage(t, conn)
	assert.Equal(t, websocket.TextMessage, kind)

	var msg struct {
		Type  string            `json:"type"`
		State map[string]string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "state", msg.Type)
	assert.Equal(t, "hello a", msg.State["text"])
}

func TestHubRoutesAudioToViewOnly(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	readMessage(t, a)
	readMessage(t, b)

	require.Eventually(t, func() bool { return hub.Clients("a") == 1 && hub.Clients("b") == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, hub.SendAudio("a", []byte("mp3")))
	require.NoError(t, hub.SendCancel("b"))

	kind, data := readMessage(t, a)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte("mp3"), data)

	kind, data = readMessage(t, b)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"type":"cancel"}`, string(data))
}

func TestHubRejectsMissingView(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHubForgetsDisconnectedBrowsers(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "a")
	readMessage(t, conn)

	require.Eventually(t, func() bool { return hub.Clients("a") == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Clients("a") == 0 }, 2*time.Second, 10*time.Millisecond)
}
