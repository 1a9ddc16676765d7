// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Publisher is the port interface for publishing tenant events.
type Publisher interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Drain flushes pending publishes and closes the connection.
	Drain() error

	// IsConnected reports whether the publisher is currently connected.
	IsConnected() bool
}

// StreamName is the JetStream stream holding all tenant subjects.
const StreamName = "TENANTDESK"

// Subject constants for NATS subjects used by tenantdesk.
const (
	SubjectTenantSwitched      = "tenants.switched"
	SubjectTenantCreated       = "tenants.created"
	SubjectTenantUpdated       = "tenants.updated"
	SubjectTenantMemberInvited = "tenants.member_invited"

	// SubjectTenantAll matches every tenant subject.
	SubjectTenantAll = "tenants.>"
)

// Nop is a Publisher that discards everything. Used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Drain() error                                  { return nil }
func (Nop) IsConnected() bool                             { return false }
