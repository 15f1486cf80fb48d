package wsmanager

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// connection represents a single client WebSocket session. Each connection
// owns a buffered send channel so the fan-out bridge never blocks on a slow
// client; writePump drains it onto the socket.
type connection struct {
	id         string
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	createdAt  time.Time

	mu            sync.Mutex
	subscriptions map[string]bool
	lastPongAt    time.Time
}

func newConnection(conn *websocket.Conn, remoteAddr string) *connection {
	now := time.Now()
	return &connection{
		id:            uuid.New().String()[:12],
		conn:          conn,
		send:          make(chan []byte, 256),
		remoteAddr:    remoteAddr,
		createdAt:     now,
		subscriptions: make(map[string]bool),
		lastPongAt:    now,
	}
}

func (c *connection) aliveSeconds() float64 {
	return time.Since(c.createdAt).Seconds()
}

func (c *connection) touchPong() {
	c.mu.Lock()
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

func (c *connection) lastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPongAt
}

func (c *connection) addSubscriptions(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.subscriptions[ch] = true
	}
}

func (c *connection) removeSubscriptions(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
}

func (c *connection) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions)
}

func (c *connection) subscriptionList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	return out
}
