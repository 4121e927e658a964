package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
)

// ErrTooManyConnections is returned by AddClient when the display limit
// is reached.
var ErrTooManyConnections = errors.New("too many display connections")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans kiosk views out to connected displays. A display
// that cannot keep up is disconnected rather than slowing the others.
type Broadcaster struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	maxClients int
	log        zerolog.Logger
}

// NewBroadcaster creates a Broadcaster. maxClients <= 0 means unlimited.
func NewBroadcaster(maxClients int, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[*client]bool),
		maxClients: maxClients,
		log:        log,
	}
}

// AddClient registers conn and queues initial as its first message.
func (b *Broadcaster) AddClient(conn *websocket.Conn, initial session.View) (*client, error) {
	data, err := json.Marshal(viewMessage(initial))
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, b: b, send: make(chan []byte, sendBuffer)}
	c.send <- data
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// PublishView sends v to every display.
func (b *Broadcaster) PublishView(v session.View) {
	b.broadcast(viewMessage(v))
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error().Err(err).Msg("broadcast marshal error")
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.offer(c, data) {
			b.log.Warn().Msg("display too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// offer queues data for c without blocking. It reports false only when
// c is still registered but its buffer is full.
func (b *Broadcaster) offer(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Stop disconnects every display.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
