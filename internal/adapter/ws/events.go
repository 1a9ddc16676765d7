package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/tenantdesk/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent marshals a typed event and sends it to principal's connections.
func (h *Hub) BroadcastEvent(ctx context.Context, principal, eventType string, payload any) {
	data, ok := encode(eventType, payload)
	if !ok {
		return
	}
	h.send(ctx, principal, data)
}

// encode builds the wire form of an event envelope.
func encode(eventType string, payload any) ([]byte, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return nil, false
	}
	data, err := json.Marshal(Message{Type: eventType, Payload: raw})
	if err != nil {
		slog.Error("marshal ws event", "type", eventType, "error", err)
		return nil, false
	}
	return data, true
}
