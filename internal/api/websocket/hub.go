package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/fortuna/diamond/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// message is a broadcast addressed to the subscribers of one game.
type message struct {
	gamePk int64
	data   []byte
}

// Hub fans broadcasts out to connected clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan message

	mu      sync.RWMutex
	clients map[*Client]bool

	logger  *logrus.Logger
	metrics *metrics.Manager
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *logrus.Logger, m *metrics.Manager) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		clients:    make(map[*Client]bool),
		logger:     logger,
		metrics:    m,
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(n)
			h.logger.WithFields(logrus.Fields{"client": c.id, "game_pk": c.gamePk}).Debug("[ws-hub] client connected")

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.gamePk) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Slow client.
					delete(h.clients, c)
					close(c.send)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(n)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWebsocketClients(n)
	h.logger.WithField("client", c.id).Debug("[ws-hub] client disconnected")
}

// Broadcast queues data for the subscribers of gamePk. It does not block;
// when the queue is full the message is dropped and false is returned.
func (h *Hub) Broadcast(gamePk int64, data []byte) bool {
	select {
	case h.broadcast <- message{gamePk: gamePk, data: data}:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one websocket connection. A zero gamePk subscribes to every game.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	gamePk int64
}

func newClient(hub *Hub, conn *websocket.Conn, gamePk int64) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		gamePk: gamePk,
	}
}

func (c *Client) wants(gamePk int64) bool {
	return c.gamePk == 0 || c.gamePk == gamePk
}

// readPump drains the connection so control frames are handled, and
// unregisters the client when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
