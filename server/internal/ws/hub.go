package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wattboard/wattboard/server/internal/dashboard"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// minInterval floors the broadcast interval so a zero value from a
	// reload cannot spin the loop.
	minInterval = 10 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// Allow all origins. CORS is applied at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Source produces the dashboard state to broadcast.
type Source interface {
	Snapshot() dashboard.Snapshot
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string             `json:"event"`
	Data  dashboard.Snapshot `json:"data"`
}

// Hub manages WebSocket clients and broadcasts the dashboard snapshot to
// all of them on every tick. Each snapshot is encoded once per tick and
// shared by every client as a prepared message.
type Hub struct {
	src      Source
	interval func() time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan *websocket.PreparedMessage
	once sync.Once
}

// stop closes the outgoing queue; the write loop then sends a close frame.
func (c *client) stop() { c.once.Do(func() { close(c.send) }) }

// New creates a Hub that broadcasts src. interval is consulted before every
// tick, so a reloaded broadcast interval applies from the next message.
func New(src Source, interval func() time.Duration) *Hub {
	return &Hub{
		src:      src,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Fixed returns an interval func that always yields d.
func Fixed(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

// Run broadcasts until ctx is cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTimer(h.next())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
			t.Reset(h.next())
		}
	}
}

// ServeHTTP upgrades the connection, sends the current snapshot right away
// and then streams broadcasts until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{conn: conn, send: make(chan *websocket.PreparedMessage, sendBufSize)}
	if msg, err := h.prepare(); err == nil {
		c.send <- msg
	} else {
		slog.Error("ws: encode snapshot", "err", err)
	}
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop()
	c.readLoop()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) next() time.Duration {
	if d := h.interval(); d >= minInterval {
		return d
	}
	return minInterval
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("ws: client connected", "remote", c.conn.RemoteAddr().String(), "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	c.stop()
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("ws: client disconnected", "remote", c.conn.RemoteAddr().String(), "clients", n)
}

// broadcast queues the current snapshot for every client. Queues are only
// written under the read lock and only closed under the write lock after
// the client left the map, so a send never hits a closed queue.
func (h *Hub) broadcast() {
	if h.Count() == 0 {
		return
	}
	msg, err := h.prepare()
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

func (h *Hub) prepare() (*websocket.PreparedMessage, error) {
	data, err := json.Marshal(Message{Event: "snapshot", Data: h.src.Snapshot()})
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
}

// writeLoop is the only writer on the connection. It drains the queue,
// keeps the connection alive with pings, and closes it on exit.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			err = c.conn.WritePreparedMessage(msg)
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// readLoop handles control frames and detects disconnects. Clients never
// send data messages.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
