// Package monitor streams live pipeline output to websocket subscribers,
// typically a bedside dashboard or a development UI.
//
// Every processed chunk's state, rate measurements, and events are
// broadcast as JSON messages. Slow subscribers are disconnected rather
// than allowed to stall the pipeline.
package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumora-health/breathsense/pkg/breath"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

// Update is one broadcast message.
type Update struct {
	Time   time.Time               `json:"time"`
	Active bool                    `json:"active"`
	State  string                  `json:"state"`
	Rate   *breath.RateMeasurement `json:"rate,omitempty"`
	Events []breath.Event          `json:"events,omitempty"`
}

// Hub fans pipeline updates out to connected websocket clients.
// All methods are safe for concurrent use.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty Hub. Pass nil to use the default logger.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log: logger.With("component", "monitor"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The monitor binds to localhost; cross-origin dashboards are
			// expected during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and subscribes the connection until it
// closes or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("subscriber connected", "remote", conn.RemoteAddr(), "total", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish broadcasts one pipeline result to every subscriber.
func (h *Hub) Publish(now time.Time, res breath.Result) {
	u := Update{
		Time:   now,
		Active: res.Active,
		State:  res.State.String(),
		Rate:   res.Rate,
		Events: res.Events,
	}
	msg, err := json.Marshal(u)
	if err != nil {
		h.log.Error("encode update", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Subscriber is not keeping up; drop it.
			h.dropLocked(c)
			h.log.Warn("dropping slow subscriber", "remote", c.conn.RemoteAddr())
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// Subscribers returns the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop consumes inbound frames so pings and close handshakes are
// processed; subscribers are not expected to send data.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked removes a client, closing both its send channel and its
// connection. The conn must be closed here, not left to writeLoop: a
// writeLoop wedged in a timed-out WriteMessage never reaches a close at
// its tail, and readLoop would stay parked on the live socket. Callers
// hold h.mu; the close handshake runs off the lock because a full socket
// buffer can stall WriteControl until its deadline.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	go func() {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeTimeout))
		c.conn.Close()
	}()
}
