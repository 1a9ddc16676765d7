// Package broadcast defines the port for pushing real-time events to connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to the connections of one principal.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to every connection opened by principal.
	BroadcastEvent(ctx context.Context, principal, eventType string, payload any)
}
