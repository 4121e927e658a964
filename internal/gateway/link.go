package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultReconnectInterval = 5 * time.Second
	defaultPingInterval      = 30 * time.Second
	defaultPongTimeout       = 60 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	maxFrameSize             = 64 << 10
)

// Options configures a Link. Zero values pick the defaults.
type Options struct {
	URL               string
	ReconnectInterval time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration

	// SecureOrigin marks a kiosk served over TLS. Such a kiosk refuses
	// plain ws:// gateways, the same way a browser blocks mixed content.
	SecureOrigin bool

	Store  EndpointStore
	Clock  clock.Clock
	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

// Link is the kiosk's single connection to the gateway. It dials in the
// background, redials on a fixed interval after any failure until
// Disconnect, and fans normalized events and status changes out to
// subscribers. Listener callbacks run one at a time on the link's
// dispatch goroutine, in the order the underlying changes happened.
type Link struct {
	reconnectInterval time.Duration
	pingInterval      time.Duration
	pongTimeout       time.Duration
	writeTimeout      time.Duration
	secureOrigin      bool
	store             EndpointStore
	clock             clock.Clock
	dialer            *websocket.Dialer
	log               zerolog.Logger

	mu              sync.Mutex
	url             string
	conn            *websocket.Conn
	dialing         bool
	shouldReconnect bool
	generation      uint64 // bumped whenever in-flight dials and reads become stale
	reconnect       *clock.Timer
	pingDone        chan struct{}
	pingTicker      *clock.Ticker
	status          Status

	writeMu sync.Mutex // serialises data frame writes

	events   registry[Event]
	statuses registry[Status]
	disp     *dispatcher
}

// NewLink creates a Link. It does not connect until Connect is called.
func NewLink(opts Options) *Link {
	url, ok := NormalizeEndpoint(opts.URL)
	if !ok {
		url = DefaultURL
	}
	l := &Link{
		reconnectInterval: orDefault(opts.ReconnectInterval, DefaultReconnectInterval),
		pingInterval:      orDefault(opts.PingInterval, defaultPingInterval),
		pongTimeout:       orDefault(opts.PongTimeout, defaultPongTimeout),
		writeTimeout:      orDefault(opts.WriteTimeout, defaultWriteTimeout),
		secureOrigin:      opts.SecureOrigin,
		store:             opts.Store,
		clock:             opts.Clock,
		dialer:            opts.Dialer,
		log:               opts.Logger.With().Str("component", "gateway").Logger(),
		url:               url,
		disp:              newDispatcher(),
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}
	if l.dialer == nil {
		l.dialer = websocket.DefaultDialer
	}
	return l
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// URL returns the configured gateway address.
func (l *Link) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Status returns the current connectivity.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Configure normalizes and persists a new gateway address, then drops
// the current connection and dials the new one. Blank input returns
// ErrEmptyEndpoint and changes nothing.
func (l *Link) Configure(endpoint string) error {
	url, ok := NormalizeEndpoint(endpoint)
	if !ok {
		return ErrEmptyEndpoint
	}

	l.log.Info().Str("input", endpoint).Str("url", url).Msg("updating gateway address")
	if l.store != nil {
		if err := l.store.SaveEndpoint(url); err != nil {
			l.log.Warn().Err(err).Msg("could not persist gateway address")
		}
	}

	l.Disconnect()

	l.mu.Lock()
	l.url = url
	l.setStatusLocked(Status{Connected: false})
	l.mu.Unlock()

	l.Connect()
	return nil
}

// Connect starts dialing unless a connection is open or a dial is in
// flight.
func (l *Link) Connect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shouldReconnect = true
	l.startDialLocked()
}

// Disconnect closes the connection and stops reconnecting.
func (l *Link) Disconnect() {
	l.mu.Lock()
	l.shouldReconnect = false
	l.generation++
	l.stopReconnectLocked()
	l.stopPingLocked()
	conn := l.conn
	l.conn = nil
	l.dialing = false
	l.setStatusLocked(Status{Connected: false, LastError: l.status.LastError})
	l.mu.Unlock()

	if conn != nil {
		l.log.Info().Msg("disconnecting from gateway")
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(l.writeTimeout))
		conn.Close()
	}
}

// Close disconnects and stops delivering callbacks. The Link cannot be
// reused afterwards.
func (l *Link) Close() {
	l.Disconnect()
	l.disp.stop()
}

// Publish sends msg as a JSON text frame. Without an open connection the
// message is dropped: telemetry is best effort and a missed beat is
// acceptable.
func (l *Link) Publish(msg any) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn == nil {
		l.log.Warn().Msg("gateway not connected, dropping outbound message")
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		l.log.Error().Err(err).Msg("encoding outbound message")
		return
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	// Socket deadlines are wall-clock, independent of the injected clock.
	conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		l.log.Warn().Err(err).Msg("sending to gateway")
		return
	}
	l.log.Debug().RawJSON("message", data).Msg("sent to gateway")
}

// SubscribeEvents registers fn for every normalized inbound event, in
// arrival order. The returned func removes the listener.
func (l *Link) SubscribeEvents(fn func(Event)) (unsubscribe func()) {
	_, cancel := l.events.add(fn)
	return cancel
}

// SubscribeStatus registers fn for status changes. fn first receives the
// current status, then every change after it.
func (l *Link) SubscribeStatus(fn func(Status)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub, cancel := l.statuses.add(fn)
	current := l.status
	l.disp.push(func() { sub.deliver(current) })
	return cancel
}

// startDialLocked launches a dial for the current generation. Caller
// must hold l.mu.
func (l *Link) startDialLocked() {
	if l.conn != nil || l.dialing {
		return
	}
	l.stopReconnectLocked()
	l.dialing = true
	l.generation++
	gen, url := l.generation, l.url
	l.log.Info().Str("url", url).Msg("connecting to gateway")
	go l.dial(gen, url)
}

func (l *Link) dial(gen uint64, url string) {
	conn, err := l.open(url)

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	l.dialing = false
	if err != nil {
		l.mu.Unlock()
		l.log.Warn().Err(err).Str("url", url).Dur("retry_in", l.reconnectInterval).Msg("gateway dial failed")
		l.lost(gen, err)
		return
	}

	l.conn = conn
	l.setStatusLocked(Status{Connected: true})
	done := make(chan struct{})
	ticker := l.clock.NewTicker(l.pingInterval)
	l.pingDone, l.pingTicker = done, ticker
	l.mu.Unlock()

	l.log.Info().Str("url", url).Msg("connected to gateway")
	go l.pingLoop(conn, ticker, done)
	go l.readLoop(gen, conn)
}

func (l *Link) open(url string) (*websocket.Conn, error) {
	if l.secureOrigin && isInsecure(url) {
		return nil, ErrInsecureTransport
	}
	conn, _, err := l.dialer.Dial(url, nil)
	return conn, err
}

func (l *Link) readLoop(gen uint64, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(l.pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.lost(gen, err)
			return
		}

		ev, ok := Normalize(data)
		if !ok {
			l.log.Debug().Bytes("frame", data).Msg("dropping unrecognized frame")
			continue
		}
		l.emit(ev)
	}
}

// pingLoop keeps the connection alive until done is closed or a ping
// cannot be written.
func (l *Link) pingLoop(conn *websocket.Conn, ticker *clock.Ticker, done <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (l *Link) emit(ev Event) {
	subs := l.events.snapshot()
	l.disp.push(func() {
		for _, s := range subs {
			s.deliver(ev)
		}
	})
}

// lost handles a failed dial or a dropped connection: it reports the
// link down, then schedules exactly one redial.
func (l *Link) lost(gen uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return
	}

	wasConnected := l.conn != nil
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.dialing = false
	l.stopPingLocked()

	next := Status{Connected: false, LastError: l.status.LastError}
	if isAbnormal(err) {
		next.LastError = l.classifyLocked().Error()
	}
	if wasConnected {
		l.log.Warn().Err(err).Msg("gateway connection lost")
	}
	l.setStatusLocked(next)

	if l.shouldReconnect {
		l.stopReconnectLocked()
		l.reconnect = l.clock.AfterFunc(l.reconnectInterval, func() { l.retry(gen) })
	}
}

func (l *Link) retry(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation || !l.shouldReconnect {
		return
	}
	l.reconnect = nil
	l.startDialLocked()
}

func (l *Link) classifyLocked() error {
	if l.secureOrigin && isInsecure(l.url) {
		return ErrInsecureTransport
	}
	return ErrUnreachable
}

func isAbnormal(err error) bool {
	if err == nil {
		return false
	}
	return !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// setStatusLocked records next and queues a notification when it
// differs from the current status. Caller must hold l.mu.
func (l *Link) setStatusLocked(next Status) {
	if next == l.status {
		return
	}
	l.status = next
	subs := l.statuses.snapshot()
	l.disp.push(func() {
		for _, s := range subs {
			s.deliver(next)
		}
	})
}

func (l *Link) stopReconnectLocked() {
	if l.reconnect != nil {
		l.reconnect.Stop()
		l.reconnect = nil
	}
}

func (l *Link) stopPingLocked() {
	if l.pingDone != nil {
		close(l.pingDone)
		l.pingTicker.Stop()
		l.pingDone, l.pingTicker = nil, nil
	}
}
