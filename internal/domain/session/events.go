package session

import "time"

// Event type constants broadcast to rendering collaborators.
const (
	EventSessionChanged = "session.changed"
	EventSessionEnded   = "session.ended"
)

// ChangedEvent is broadcast whenever a session snapshot changes.
type ChangedEvent struct {
	View View `json:"view"`
}

// EndedEvent is broadcast when a principal signs out.
type EndedEvent struct {
	Principal string `json:"principal"`
}

// TenantEvent is the payload published for tenant-level actions taken
// through a session.
type TenantEvent struct {
	EventID      string    `json:"event_id"`
	Principal    string    `json:"principal"`
	TenantID     string    `json:"tenant_id"`
	FromTenantID string    `json:"from_tenant_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SwitchOutcome is the recorded result of a switch attempt.
type SwitchOutcome string

const (
	OutcomeSucceeded SwitchOutcome = "succeeded"
	OutcomeFailed    SwitchOutcome = "failed"
	OutcomeRejected  SwitchOutcome = "rejected"
	OutcomeNoop      SwitchOutcome = "noop"
)

// SwitchRecord is one audited switch attempt.
type SwitchRecord struct {
	ID           string        `json:"id"`
	Principal    string        `json:"principal"`
	FromTenantID string        `json:"from_tenant_id,omitempty"`
	ToTenantID   string        `json:"to_tenant_id"`
	Outcome      SwitchOutcome `json:"outcome"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	CreatedAt    time.Time     `json:"created_at"`
}
