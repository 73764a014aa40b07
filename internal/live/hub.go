// Package live pushes analysis snapshots to browsers over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/service/analysis"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
	readLimit  = 512
)

// Hub fans the latest message out to every connected WebSocket client.
//
// Messages are coalesced: a client that connects, or falls behind between
// two broadcasts, receives the most recent message rather than every one.
// New clients receive the latest message immediately.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	notify     chan struct{}
	done       chan struct{}
	count      atomic.Int64
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu     sync.Mutex
	latest []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Call Run to start it.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			// The viewer is served from other origins during local development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logging.WithComponent("live-hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	clients := make(map[*client]struct{})

	drop := func(c *client) {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		close(c.send)
		h.count.Store(int64(len(clients)))
		h.metrics.RecordWebSocketClients(len(clients))
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			return

		case c := <-h.register:
			clients[c] = struct{}{}
			h.count.Store(int64(len(clients)))
			h.metrics.RecordWebSocketClients(len(clients))
			h.logger.Debug().Int("clients", len(clients)).Msg("Client connected")
			if msg := h.latestMessage(); msg != nil {
				c.send <- msg
			}

		case c := <-h.unregister:
			drop(c)
			h.logger.Debug().Int("clients", len(clients)).Msg("Client disconnected")

		case <-h.notify:
			msg := h.latestMessage()
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn().Msg("Client too slow, disconnecting")
					drop(c)
				}
			}
		}
	}
}

// Broadcast encodes v as JSON and sends it to every client.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode broadcast")
		return
	}
	h.mu.Lock()
	h.latest = msg
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Publish broadcasts an analysis snapshot.
func (h *Hub) Publish(s analysis.Snapshot) {
	h.Broadcast(s)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) latestMessage() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and unregisters the client once the
// connection fails.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	c.conn.SetReadLimit(readLimit)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
