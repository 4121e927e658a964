package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientSimulate(t *testing.T) {
	var gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/simulate", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		gotBody, gotAuth = string(body), r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"event":{"kind":"button","value":"BTN_GREEN"}}`)
	}))
	defer srv.Close()

	ev, err := NewHTTPClient(srv.URL+"/", "tok").Simulate(gateway.ButtonGreen)
	require.NoError(t, err)
	assert.Equal(t, gateway.Event{Kind: gateway.KindButton, Value: gateway.ButtonGreen}, ev)
	assert.Equal(t, gateway.ButtonGreen, gotBody)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestHTTPClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "simulator disabled", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Simulate("RFID-001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulator disabled")

	err = c.Logout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPClientLogout(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodPost && r.URL.Path == "/api/session/logout"
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPClient(srv.URL, "").Logout())
	assert.True(t, called)
}

func TestWSClientFollowsFeed(t *testing.T) {
	frames := []string{
		`{"type":"view","payload":{"phase":"IDLE","gateway":{"connected":true},"version":2}}`,
		`not json`,
		`{"type":"view","payload":{"phase":"AUTHENTICATING","tag":"RFID-001","gateway":{"connected":true},"version":1}}`,
		`{"type":"view","payload":{"phase":"AUTHENTICATED","gateway":{"connected":true},"version":3}}`,
	}
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.Header.Get("X-Kiosk-Token")
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "tok")
	assert.Equal(t, ConnectedMsg{}, c.Listen(ctx)())
	assert.Equal(t, "tok", <-tokens)

	first, ok := c.ReadLoop(ctx)().(ViewMsg)
	require.True(t, ok)
	assert.Equal(t, session.Idle, first.View.Phase)

	// The stale version-1 view is skipped.
	next, ok := c.ReadLoop(ctx)().(ViewMsg)
	require.True(t, ok)
	assert.Equal(t, session.Authenticated, next.View.Phase)
	assert.EqualValues(t, 3, c.Version())
}

func TestWSClientReportsDisconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "")
	require.Equal(t, ConnectedMsg{}, c.Listen(ctx)())

	msg, ok := c.ReadLoop(ctx)().(DisconnectedMsg)
	require.True(t, ok)
	assert.Error(t, msg.Err)

	_, ok = c.ReadLoop(ctx)().(DisconnectedMsg)
	assert.True(t, ok, "reading without a connection reports a disconnect")
}

func TestWSClientListenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, NewWSClient("ws://127.0.0.1:1/ws", "").Listen(ctx)())
}
