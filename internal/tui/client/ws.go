package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// WSClient follows the kiosk display feed.
type WSClient struct {
	url   string
	token string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises pings
	conn    *websocket.Conn
	version uint64
	pingCtx context.CancelFunc
}

// NewWSClient creates a client for the feed at url.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// ConnectedMsg is sent when the feed connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the feed drops.
type DisconnectedMsg struct{ Err error }

// ViewMsg carries a new kiosk view.
type ViewMsg struct{ View session.View }

// ServerErrorMsg wraps an error frame from the kiosk.
type ServerErrorMsg struct{ Raw json.RawMessage }

type feedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Listen returns a command that dials the feed, backing off
// exponentially between failed attempts.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			var header http.Header
			if c.token != "" {
				header = http.Header{"X-Kiosk-Token": []string{c.token}}
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.version = 0
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)
			return ConnectedMsg{}
		}
	}
}

// ReadLoop returns a command that reads until the next message worth
// handing to the model. Start it again after each message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: errNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}

			var msg feedMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if teaMsg := c.dispatch(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Version returns the version of the last view received.
func (c *WSClient) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// dispatch decodes msg. Views older than the last one seen are skipped.
func (c *WSClient) dispatch(msg feedMessage) tea.Msg {
	switch msg.Type {
	case "view":
		var v session.View
		if json.Unmarshal(msg.Payload, &v) != nil {
			return nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if v.Version != 0 && v.Version < c.version {
			return nil
		}
		c.version = v.Version
		return ViewMsg{View: v}
	case "error":
		return ServerErrorMsg{Raw: msg.Payload}
	}
	return nil
}
