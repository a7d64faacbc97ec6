package webserver

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Commands are tiny; anything bigger is not ours.
	maxMessageSize = 64 * 1024

	sendBufferSize     = 16
	broadcastQueueSize = 64
)

// MessageHandler receives every text frame a dashboard sends.
type MessageHandler func(ctx context.Context, data []byte)

// Client is one connected dashboard.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	closeOnce sync.Once
	closed    atomic.Bool
}

// ID returns the connection id used in logs.
func (c *Client) ID() string { return c.id }

// SafeSend queues data without blocking. It reports false when the
// client is gone or its buffer is full; the next snapshot supersedes a
// dropped one.
func (c *Client) SafeSend(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close closes the send channel exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// Hub fans fleet snapshots out to every connected dashboard and hands
// their commands to the handler.
type Hub struct {
	upgrader websocket.Upgrader
	initial  func() protocol.FleetSnapshot
	handler  MessageHandler
	log      *zap.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcasts chan []byte
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub returns a hub that greets new clients with initial() and routes
// their frames to handler. Run must be started before ServeWS is used.
func NewHub(initial func() protocol.FleetSnapshot, handler MessageHandler) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// Dashboards connect from anywhere on the LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		initial:    initial,
		handler:    handler,
		log:        logger.Named("hub"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcasts: make(chan []byte, broadcastQueueSize),
		done:       make(chan struct{}),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run processes registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
			h.log.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("Dashboard connected", zap.String("client", client.id), zap.Int("clients", count))
			h.greet(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("Dashboard disconnected", zap.String("client", client.id), zap.Int("clients", count))

		case data := <-h.broadcasts:
			h.mu.RLock()
			for client := range h.clients {
				if !client.SafeSend(data) {
					h.log.Debug("Dropped snapshot for slow client", zap.String("client", client.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) greet(client *Client) {
	if h.initial == nil {
		return
	}
	data, err := protocol.EncodeSnapshot(h.initial())
	if err != nil {
		h.log.Error("Failed to encode initial snapshot", zap.Error(err))
		return
	}
	client.SafeSend(data)
}

// BroadcastSnapshot queues snapshot for every client.
func (h *Hub) BroadcastSnapshot(snapshot protocol.FleetSnapshot) {
	data, err := protocol.EncodeSnapshot(snapshot)
	if err != nil {
		h.log.Error("Failed to encode snapshot", zap.Error(err))
		return
	}
	select {
	case h.broadcasts <- data:
	case <-h.done:
	default:
		h.log.Warn("Broadcast queue full, dropping snapshot")
	}
}

// ServeWS upgrades the request and serves the connection until either
// side closes it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(r.Context())
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("Dashboard connection dropped", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage || c.hub.handler == nil {
			continue
		}
		c.hub.handler(ctx, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
