package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxConnections = 500
	sendBuffer     = 64
	writeTimeout   = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// Room name for a user-scoped subscription.
func Room(tenantID, userID string) string {
	return fmt.Sprintf("tenant:%s:user:%s", tenantID, userID)
}

// client owns one connection. All writes, pings included, go through its
// writePump: gorilla connections allow a single concurrent writer.
type client struct {
	conn *websocket.Conn
	room string
	send chan any
	done chan struct{}
}

// Hub fans events out to websocket clients grouped into rooms. A single
// goroutine owns registration so connect/disconnect never race a broadcast.
type Hub struct {
	register   chan registration
	unregister chan *websocket.Conn
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

type registration struct {
	conn *websocket.Conn
	room string
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		logger:     logger.With("component", "ws_hub"),
		clients:    make(map[*websocket.Conn]*client),
	}
}

// Run owns the client map until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case reg := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxConnections {
				h.mu.Unlock()
				_ = reg.conn.Close()
				h.logger.Warn("websocket connection rejected, hub full", "max", maxConnections)
				continue
			}
			c := &client{
				conn: reg.conn,
				room: reg.room,
				send: make(chan any, sendBuffer),
				done: make(chan struct{}),
			}
			h.clients[reg.conn] = c
			total := len(h.clients)
			h.mu.Unlock()
			go h.writePump(c)
			h.logger.Info("websocket client joined", "room", reg.room, "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if c, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(c.done)
				_ = conn.Close()
				h.logger.Info("websocket client left", "room", c.room, "total", len(h.clients))
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(conn *websocket.Conn, room string) {
	h.register <- registration{conn: conn, room: room}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// Emit queues one message for every client in the room. A client whose
// buffer is full cannot keep up and gets evicted; its read pump notices the
// closed connection and exits.
func (h *Hub) Emit(room string, message any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, c := range h.clients {
		if c.room != room {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.logger.Warn("websocket client too slow, evicting", "room", room)
			go h.Unregister(conn)
		}
	}
}

// writePump is the only goroutine writing to the connection. It drains the
// send buffer and keeps the ping cycle going; the handler's read pump owns
// the matching pong deadline.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write failed, evicting client", "room", c.room, "error", err)
				go h.Unregister(c.conn)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go h.Unregister(c.conn)
				return
			}
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Info("closing websocket hub", "clients", len(h.clients))
	for conn, c := range h.clients {
		close(c.done)
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*client)
}
