package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tryon_backend/logging"
	"tryon_backend/outfit"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed to WebSocket clients
const (
	EventProgress  = "progress"
	EventConnected = "connected"
)

// Event is one WebSocket message.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BroadcasterConfig configures a Broadcaster.
type BroadcasterConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	QueueSize      int // broadcast queue and per-client send buffer
}

// DefaultBroadcasterConfig returns the defaults.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 512,
		QueueSize:      256,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster pushes outfit progress events to every connected WebSocket
// client. It implements outfit.ProgressReporter; Report never blocks and
// drops events when the queue is full.
type Broadcaster struct {
	cfg      BroadcasterConfig
	upgrader websocket.Upgrader
	logger   *logging.Logger

	queue      chan Event
	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]struct{}
}

var _ outfit.ProgressReporter = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster. Call Run to start delivery.
func NewBroadcaster(cfg BroadcasterConfig, logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.NewNop()
	}
	def := DefaultBroadcasterConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Broadcaster{
		cfg:    cfg,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The extension connects from its own origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		queue:      make(chan Event, cfg.QueueSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}
}

// Report implements outfit.ProgressReporter.
func (b *Broadcaster) Report(event outfit.ProgressEvent) {
	b.Publish(Event{Type: EventProgress, Data: event, Timestamp: event.Time})
}

// Publish queues ev for every client.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case b.queue <- ev:
	default:
		b.logger.Warn("Broadcast queue full, dropping event", zap.String("type", ev.Type))
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Run delivers events until ctx is done, then disconnects every client.
func (b *Broadcaster) Run(ctx context.Context) {
	ping := time.NewTicker(b.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = struct{}{}
			n := len(b.clients)
			b.mu.Unlock()
			go b.writePump(c)
			b.logger.Debug("Client connected", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", n))
		case c := <-b.unregister:
			b.remove(c)
		case ev := <-b.queue:
			b.deliver(ev)
		case <-ping.C:
			b.pingAll()
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(b.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
	})

	c := &client{conn: conn, send: make(chan []byte, b.cfg.QueueSize)}
	if hello, err := json.Marshal(Event{Type: EventConnected, Timestamp: time.Now().UTC()}); err == nil {
		c.send <- hello
	}
	select {
	case b.register <- c:
	case <-time.After(b.cfg.WriteWait):
		// Run is not accepting clients
		conn.Close()
		return
	}
	go b.readPump(c)
}

func (b *Broadcaster) deliver(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("Client too slow, disconnecting", zap.String("remote", c.conn.RemoteAddr().String()))
		b.remove(c)
	}
}

func (b *Broadcaster) pingAll() {
	var dead []*client
	deadline := time.Now().Add(b.cfg.WriteWait)
	b.mu.RLock()
	for c := range b.clients {
		// WriteControl may run concurrently with the write pump
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			dead = append(dead, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range dead {
		b.remove(c)
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}

// readPump discards client messages and notices disconnects.
func (b *Broadcaster) readPump(c *client) {
	defer func() {
		select {
		case b.unregister <- c:
		case <-time.After(b.cfg.WriteWait):
		}
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("WebSocket closed", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all data writes to c.conn.
func (b *Broadcaster) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}
