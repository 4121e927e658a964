// Package ws serves the kiosk display feed and the admin API.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/settings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const maxBodySize = 4 << 10

// Kiosk is the session controller as seen by the API.
type Kiosk interface {
	Snapshot() session.View
	Logout()
	SetLogoutAfter(d time.Duration)
	OnEvent(ev gateway.Event)
}

// Gateway is the transport link as seen by the API.
type Gateway interface {
	URL() string
	Status() gateway.Status
	Configure(endpoint string) error
}

type SettingsStore interface {
	Current() settings.Settings
	Update(fn func(*settings.Settings)) (settings.Settings, error)
}

type Options struct {
	Kiosk       Kiosk
	Gateway     Gateway
	Settings    SettingsStore
	Broadcaster *Broadcaster
	// Frontend, when set, serves the browser display at /.
	Frontend    http.Handler

	AuthToken      string
	AllowedOrigins []string
	// SimulatorEnabled and LogoutAfter apply until the operator saves a
	// preference.
	SimulatorEnabled bool
	LogoutAfter      time.Duration
	Logger           zerolog.Logger
}

type Server struct {
	kiosk            Kiosk
	gateway          Gateway
	settings         SettingsStore
	broadcaster      *Broadcaster
	frontend         http.Handler
	allowedOrigins   map[string]bool
	allowedHosts     map[string]bool
	authToken        string
	simulatorDefault bool
	logoutDefault    time.Duration
	log              zerolog.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		kiosk:            opts.Kiosk,
		gateway:          opts.Gateway,
		settings:         opts.Settings,
		broadcaster:      opts.Broadcaster,
		frontend:         opts.Frontend,
		allowedOrigins:   make(map[string]bool),
		allowedHosts:     make(map[string]bool),
		authToken:        opts.AuthToken,
		simulatorDefault: opts.SimulatorEnabled,
		logoutDefault:    opts.LogoutAfter,
		log:              opts.Logger.With().Str("component", "server").Logger(),
	}
	if s.broadcaster == nil {
		s.broadcaster = NewBroadcaster(0, s.log)
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handler returns the router for every kiosk endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("took", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	if s.frontend != nil {
		r.Handle("/*", s.frontend)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/ws", s.handleWS)
		r.Route("/api", func(r chi.Router) {
			r.Get("/view", s.handleView)
			r.Get("/gateway", s.handleGetGateway)
			r.Put("/gateway", s.handlePutGateway)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
			r.Post("/session/logout", s.handleLogout)
			r.Post("/simulate", s.handleSimulate)
		})
	})
	return r
}

// Broadcaster returns the display fan-out, for wiring to the controller.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	c, err := s.broadcaster.AddClient(conn, s.kiosk.Snapshot())
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejecting display")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	s.log.Info().Str("remote", r.RemoteAddr).Msg("display connected")

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Info().Str("remote", r.RemoteAddr).Msg("display disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kiosk.Snapshot())
}

func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GatewayPayload{URL: s.gateway.URL(), Status: s.gateway.Status()})
}

func (s *Server) handlePutGateway(w http.ResponseWriter, r *http.Request) {
	var req GatewayUpdate
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.gateway.Configure(req.URL)
	if errors.Is(err, gateway.ErrEmptyEndpoint) {
		http.Error(w, "gateway url must not be blank", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, GatewayPayload{URL: s.gateway.URL(), Status: s.gateway.Status()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settingsPayload(s.settings.Current()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdate
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.LogoutSeconds != nil && *req.LogoutSeconds <= 0 {
		http.Error(w, "logoutSeconds must be positive", http.StatusBadRequest)
		return
	}

	st, err := s.settings.Update(func(st *settings.Settings) {
		if req.LogoutSeconds != nil {
			st.LogoutSeconds = *req.LogoutSeconds
		}
		if req.ShowSimulator != nil {
			v := *req.ShowSimulator
			st.ShowSimulator = &v
		}
	})
	if err != nil {
		s.log.Error().Err(err).Msg("saving settings")
		http.Error(w, "could not save settings", http.StatusInternalServerError)
		return
	}
	if req.LogoutSeconds != nil {
		s.kiosk.SetLogoutAfter(st.LogoutAfter())
	}
	writeJSON(w, http.StatusOK, s.settingsPayload(st))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.kiosk.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// handleSimulate feeds a raw gateway frame to the kiosk, standing in for
// the card reader and buttons during setup and demos.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if !s.simulatorEnabled() {
		http.Error(w, "simulator disabled", http.StatusNotFound)
		return
	}

	frame, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "frame too large", http.StatusRequestEntityTooLarge)
		return
	}
	ev, ok := gateway.Normalize(frame)
	if !ok {
		http.Error(w, "frame not recognized", http.StatusUnprocessableEntity)
		return
	}

	s.log.Info().Str("kind", ev.Kind.String()).Str("value", ev.Value).Msg("simulated event")
	s.kiosk.OnEvent(ev)
	writeJSON(w, http.StatusAccepted, SimulateResult{Event: ev})
}

func (s *Server) simulatorEnabled() bool {
	if v := s.settings.Current().ShowSimulator; v != nil {
		return *v
	}
	return s.simulatorDefault
}

func (s *Server) settingsPayload(st settings.Settings) SettingsPayload {
	p := SettingsPayload{
		GatewayURL:    s.gateway.URL(),
		LogoutSeconds: st.LogoutSeconds,
		ShowSimulator: s.simulatorDefault,
	}
	if p.LogoutSeconds == 0 {
		p.LogoutSeconds = int(s.logoutDefault / time.Second)
	}
	if st.ShowSimulator != nil {
		p.ShowSimulator = *st.ShowSimulator
	}
	return p
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Kiosk-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
