package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/metrics"
)

const (
	// ReferenceParam is the query parameter naming the transaction a session waits on
	ReferenceParam = "transactionReference"

	defaultWriteTimeout = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 4096
	unregisterTimeout   = 5 * time.Second
)

// SessionRegistrar is notified when push sessions open and close
type SessionRegistrar interface {
	OnConnect(ctx context.Context, transactionReference, sessionHandle string) error
	OnDisconnect(ctx context.Context, sessionHandle string) error
}

// Options configures a Hub
type Options struct {
	// AllowedOrigins restricts browser origins; empty allows any origin
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub accepts websocket sessions and pushes payloads to them by handle.
// Sessions are local to the process: a completion handled by another instance
// cannot reach them.
type Hub struct {
	registrar    SessionRegistrar
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*client
	// pending holds handles that are registered but not yet upgraded;
	// the channel closes once the handshake finishes either way
	pending map[string]chan struct{}
}

var _ domain.SessionPusher = (*Hub)(nil)

// NewHub creates a hub that registers every session through registrar
func NewHub(registrar SessionRegistrar, opts Options, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	h := &Hub{
		registrar:    registrar,
		writeTimeout: opts.WriteTimeout,
		logger:       logger.With(slog.String("component", "websocket")),
		metrics:      m,
		clients:      make(map[string]*client),
		pending:      make(map[string]chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP registers the session before upgrading, so a registration failure
// rejects the handshake. It blocks until the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get(ReferenceParam)
	if ref == "" {
		http.Error(w, "missing "+ReferenceParam, http.StatusBadRequest)
		return
	}

	handle := uuid.NewString()
	logger := h.logger.With(slog.String("transaction_reference", ref), slog.String("session_handle", handle))

	// A completion may look the handle up as soon as it is registered
	ready := make(chan struct{})
	h.mu.Lock()
	h.pending[handle] = ready
	h.mu.Unlock()

	if err := h.registrar.OnConnect(r.Context(), ref, handle); err != nil {
		h.settle(handle, ready, nil)
		http.Error(w, "session registration failed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.settle(handle, ready, nil)
		logger.Warn("websocket upgrade failed", "err", err)
		h.unregister(handle)
		return
	}

	c := &client{conn: conn}
	h.settle(handle, ready, c)
	h.metrics.SessionOpened()
	logger.Info("session connected")

	done := make(chan struct{})
	go h.keepAlive(c, done)

	h.readUntilClosed(conn)
	close(done)

	h.mu.Lock()
	if h.clients[handle] == c {
		delete(h.clients, handle)
	}
	h.mu.Unlock()
	conn.Close()
	h.metrics.SessionClosed()
	h.unregister(handle)
	logger.Info("session disconnected")
}

// settle ends the handshake for handle, attaching c when the upgrade succeeded
func (h *Hub) settle(handle string, ready chan struct{}, c *client) {
	h.mu.Lock()
	delete(h.pending, handle)
	if c != nil {
		h.clients[handle] = c
	}
	h.mu.Unlock()
	close(ready)
}

// readUntilClosed discards inbound frames; reading is what surfaces close and pong frames
func (h *Hub) readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) keepAlive(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) unregister(handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer cancel()
	// Best effort: the registrar logs its own failures
	_ = h.registrar.OnDisconnect(ctx, handle)
}

// Send writes payload as a text frame to the session.
// A handle still in its handshake is waited for until ctx ends.
// Returns domain.ErrSessionGone when the handle is not connected here.
func (h *Hub) Send(ctx context.Context, sessionHandle string, payload []byte) error {
	h.mu.RLock()
	c, ok := h.clients[sessionHandle]
	ready, pending := h.pending[sessionHandle]
	h.mu.RUnlock()

	if !ok && pending {
		select {
		case <-ready:
		case <-ctx.Done():
			return fmt.Errorf("%w: handshake still in progress: %v", domain.ErrSessionGone, ctx.Err())
		}
		h.mu.RLock()
		c, ok = h.clients[sessionHandle]
		h.mu.RUnlock()
	}
	if !ok {
		return domain.ErrSessionGone
	}

	deadline := time.Now().Add(h.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionGone, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// The read loop notices the closed connection and unregisters the session
		c.conn.Close()
		return fmt.Errorf("write to session %s: %w", sessionHandle, err)
	}
	return nil
}

// OpenSessions returns the number of connected sessions
func (h *Hub) OpenSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a going-away frame to every session and closes it
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
