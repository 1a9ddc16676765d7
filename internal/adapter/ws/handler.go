// Package ws pushes session changes to connected clients over WebSocket.
// Every connection belongs to one principal and only receives that
// principal's events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PrincipalFunc resolves the principal key of an upgrade request.
type PrincipalFunc func(r *http.Request) (string, bool)

// GreetFunc returns the event sent to a connection right after it opens.
type GreetFunc func(ctx context.Context, principal string) (eventType string, payload any, ok bool)

type conn struct {
	ws        *websocket.Conn
	cancel    context.CancelFunc
	principal string
}

// Hub manages all active WebSocket connections.
type Hub struct {
	originPatterns []string
	principalOf    PrincipalFunc
	greet          GreetFunc

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a hub. originPatterns are passed to websocket.Accept; an
// empty list accepts same-origin requests only.
func NewHub(originPatterns []string, principalOf PrincipalFunc) *Hub {
	return &Hub{
		originPatterns: originPatterns,
		principalOf:    principalOf,
		conns:          make(map[*conn]struct{}),
	}
}

// OnConnect sets the greeting sent to every new connection. Call it before
// serving.
func (h *Hub) OnConnect(fn GreetFunc) { h.greet = fn }

// HandleWS upgrades the request and registers the connection under its
// principal. Requests without a principal are rejected with 401.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalOf(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "session cookie required", "kind": "no_session"})
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, principal: principal}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	slog.InfoContext(ctx, "websocket connected", "principal", principal, "remote", r.RemoteAddr)

	if h.greet != nil {
		if eventType, payload, ok := h.greet(ctx, principal); ok {
			if msg, ok := encode(eventType, payload); ok {
				h.write(ctx, c, msg)
			}
		}
	}

	// Read loop to detect disconnects and consume pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends msg to every connection of principal.
func (h *Hub) Broadcast(ctx context.Context, principal string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.send(ctx, principal, data)
}

func (h *Hub) send(ctx context.Context, principal string, data []byte) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c.principal == principal {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.write(ctx, c, data)
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
		delete(h.conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) write(ctx context.Context, c *conn, data []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "principal", c.principal, "error", err)
		h.remove(c)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "principal", c.principal)
	}
}
