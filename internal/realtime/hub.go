package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jw6ventures/casefile/internal/auth"
	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
	"github.com/jw6ventures/casefile/internal/metrics"
)

// Event names delivered to clients.
const (
	EventNotificationNew     = "notification:new"
	EventNotificationRead    = "notification:read"
	EventNotificationDeleted = "notification:deleted"
	EventSyncProgress        = "sync:progress"
	EventSyncCompleted       = "sync:completed"
	EventDocumentUpdated     = "document:updated"
	EventEventUpdated        = "event:updated"
)

// Message is the JSON frame written to a client.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	userID string
	send   chan Message
}

// Hub keeps the live websocket clients of every user and fans events out
// to them. Delivery is best effort: a client whose queue is full misses
// the message.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]struct{}

	verifier       auth.Verifier
	logger         *zap.Logger
	queueSize      int
	writeTimeout   time.Duration
	originPatterns []string

	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Hub)

// WithQueueSize sets the per-client buffer (default 32).
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithOriginPatterns allows cross-origin handshakes from the given hosts.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

func NewHub(verifier auth.Verifier, logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:      make(map[string]map[*client]struct{}),
		verifier:     verifier,
		logger:       logger,
		queueSize:    32,
		writeTimeout: 10 * time.Second,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emit queues event for every live client of userID. It never blocks and
// never fails; users without clients simply miss the event.
func (h *Hub) Emit(userID, event string, payload any) {
	msg := Message{Event: event, Data: payload}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		metrics.IncRealtimeEvent(event, "offline")
		h.logger.Debug("no live clients, dropping event",
			zap.String("user_id", userID), zap.String("event", event))
		return
	}
	for _, c := range targets {
		select {
		case c.send <- msg:
			metrics.IncRealtimeEvent(event, "queued")
		default:
			metrics.IncRealtimeEvent(event, "dropped")
			h.logger.Warn("realtime queue full, dropping event",
				zap.String("user_id", userID), zap.String("event", event))
		}
	}
}

// ClientCount reports the live clients of userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP authenticates the handshake, upgrades the connection and
// streams the user's events until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.Authenticate(h.verifier, r, true)
	if !ok {
		httperrors.Unauthorized(w, r, "authentication required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	c := h.register(userID)
	defer h.unregister(c)

	// Clients never send anything we act on; CloseRead handles control
	// frames and cancels ctx once the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg := <-c.send:
			if err := h.write(ctx, conn, msg); err != nil {
				h.logger.Debug("websocket write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *Hub) register(userID string) *client {
	c := &client{userID: userID, send: make(chan Message, h.queueSize)}
	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.AddRealtimeClients(1)
	h.logger.Debug("realtime client connected", zap.String("user_id", userID))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	metrics.AddRealtimeClients(-1)
	h.logger.Debug("realtime client disconnected", zap.String("user_id", c.userID))
}
