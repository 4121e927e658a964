package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/settings"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKiosk struct {
	mu          sync.Mutex
	view        session.View
	events      []gateway.Event
	logouts     int
	logoutAfter time.Duration
}

func (k *fakeKiosk) Snapshot() session.View {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.view.Clone()
}

func (k *fakeKiosk) Logout() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logouts++
}

func (k *fakeKiosk) SetLogoutAfter(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logoutAfter = d
}

func (k *fakeKiosk) OnEvent(ev gateway.Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, ev)
}

type fakeGateway struct {
	mu     sync.Mutex
	url    string
	status gateway.Status
}

func (g *fakeGateway) URL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.url
}

func (g *fakeGateway) Status() gateway.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *fakeGateway) Configure(endpoint string) error {
	url, ok := gateway.NormalizeEndpoint(endpoint)
	if !ok {
		return gateway.ErrEmptyEndpoint
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.url = url
	g.status = gateway.Status{}
	return nil
}

type serverFixture struct {
	kiosk    *fakeKiosk
	gateway  *fakeGateway
	settings *settings.Store
	server   *Server
	handler  http.Handler
}

func newFixture(t *testing.T, mutate ...func(*Options)) *serverFixture {
	t.Helper()
	f := &serverFixture{
		kiosk:    &fakeKiosk{view: session.View{Phase: session.Idle, Version: 3}},
		gateway:  &fakeGateway{url: gateway.DefaultURL, status: gateway.Status{Connected: true}},
		settings: settings.NewStore(t.TempDir()),
	}
	opts := Options{
		Kiosk:            f.kiosk,
		Gateway:          f.gateway,
		Settings:         f.settings,
		SimulatorEnabled: true,
		LogoutAfter:      15 * time.Second,
		Logger:           zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.server = NewServer(opts)
	f.handler = f.server.Handler()
	t.Cleanup(f.server.Broadcaster().Stop)
	return f
}

func (f *serverFixture) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/view", "")

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}
	for header, expected := range want {
		assert.Equal(t, expected, rec.Header().Get(header), header)
	}
}

func TestAuthToken(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AuthToken = "s3cret" })

	tests := []struct {
		name   string
		target string
		header []string
		want   int
	}{
		{"missing", "/api/view", nil, http.StatusUnauthorized},
		{"wrong", "/api/view", []string{"X-Kiosk-Token", "nope"}, http.StatusUnauthorized},
		{"query", "/api/view?token=s3cret", nil, http.StatusOK},
		{"header", "/api/view", []string{"X-Kiosk-Token", "s3cret"}, http.StatusOK},
		{"bearer", "/api/view", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.target, "", tt.header...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetView(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/view", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, session.Idle, v.Phase)
	assert.EqualValues(t, 3, v.Version)
}

func TestGatewayEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/gateway", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got GatewayPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, gateway.DefaultURL, got.URL)
	assert.True(t, got.Status.Connected)

	rec = f.do(http.MethodPut, "/api/gateway", `{"url":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, gateway.DefaultURL, f.gateway.URL())

	rec = f.do(http.MethodPut, "/api/gateway", `{"url":"https://gw.plant.local/ws/rfid"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "wss://gw.plant.local/ws/rfid", got.URL)

	rec = f.do(http.MethodPut, "/api/gateway", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got SettingsPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 15, got.LogoutSeconds)
	assert.True(t, got.ShowSimulator)

	rec = f.do(http.MethodPut, "/api/settings", `{"logoutSeconds":30,"showSimulator":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 30, got.LogoutSeconds)
	assert.False(t, got.ShowSimulator)

	assert.Equal(t, 30*time.Second, f.kiosk.logoutAfter)
	assert.Equal(t, 30, f.settings.Current().LogoutSeconds)

	reloaded := settings.NewStore(strings.TrimSuffix(f.settings.Path(), "/settings.json"))
	st, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 30, st.LogoutSeconds)
}

func TestSettingsRejectsNonPositiveTimeout(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPut, "/api/settings", `{"logoutSeconds":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.kiosk.logoutAfter)
}

func TestLogoutEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/session/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.kiosk.logouts)
}

func TestSimulate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/simulate", `RFID-002`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"event":{"kind":"rfid","value":"RFID-002"}}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/simulate", `{"type":"button","value":"BTN_RED"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/api/simulate", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, []gateway.Event{
		{Kind: gateway.KindRFID, Value: "RFID-002"},
		{Kind: gateway.KindButton, Value: gateway.ButtonRed},
	}, f.kiosk.events)
}

func TestSimulateDisabled(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SimulatorEnabled = false })
	rec := f.do(http.MethodPost, "/api/simulate", `RFID-002`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.kiosk.events)

	// A saved preference overrides the configured default.
	rec = f.do(http.MethodPut, "/api/settings", `{"showSimulator":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/api/simulate", `RFID-002`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "kiosk:8080", true},
		{"same host", nil, "http://kiosk:8080", "kiosk:8080", true},
		{"localhost", nil, "http://localhost:5173", "kiosk:8080", true},
		{"foreign", nil, "http://evil.example", "kiosk:8080", false},
		{"allow list", []string{"https://panel.plant.local"}, "https://panel.plant.local", "kiosk:8080", true},
		{"allow list host", []string{"https://panel.plant.local"}, "http://panel.plant.local", "kiosk:8080", true},
		{"allow list miss", []string{"https://panel.plant.local"}, "http://localhost:5173", "kiosk:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Options{AllowedOrigins: tt.allowed, Logger: zerolog.Nop()})
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(req))
		})
	}
}

func TestDisplayFeed(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	first := readView(t, conn)
	assert.EqualValues(t, 3, first.Version)

	require.Eventually(t, func() bool { return f.server.Broadcaster().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.server.Broadcaster().PublishView(session.View{Phase: session.Authenticated, Version: 4})
	next := readView(t, conn)
	assert.Equal(t, session.Authenticated, next.Phase)

	conn.Close()
	assert.Eventually(t, func() bool { return f.server.Broadcaster().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisplayFeedRejectsWhenFull(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Broadcaster = NewBroadcaster(1, zerolog.Nop()) })
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() })
	readView(t, first)

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestFrontendIsPublic(t *testing.T) {
	page := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("display"))
	})
	f := newFixture(t, func(o *Options) {
		o.AuthToken = "s3cret"
		o.Frontend = page
	})

	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "display", rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = f.do(http.MethodGet, "/api/view", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
