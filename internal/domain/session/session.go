// Package session defines the client-side tenant session state derived from
// the Tenant API.
package session

import (
	"time"

	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
)

// SwitchState is a state of the tenant-switch lifecycle.
type SwitchState string

const (
	SwitchIdle      SwitchState = "idle"
	SwitchSwitching SwitchState = "switching"
)

// ErrorKind classifies the failure surfaced on a session.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindApplication ErrorKind = "application"
	KindValidation  ErrorKind = "validation"
	KindBusy        ErrorKind = "busy"
	KindStale       ErrorKind = "stale"
	KindTimeout     ErrorKind = "timeout"
	KindUnavailable ErrorKind = "unavailable"
)

// Error is the last failure recorded on a session. A later successful
// operation clears it.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of a principal's tenant session.
// CurrentTenant, when set, is always an element of UserTenants.
type Snapshot struct {
	Principal         string             `json:"principal"`
	CurrentTenant     *tenant.Tenant     `json:"current_tenant,omitempty"`
	CurrentMembership *tenant.Membership `json:"current_membership,omitempty"`
	UserTenants       []tenant.Tenant    `json:"user_tenants"`
	IsLoading         bool               `json:"is_loading"`
	IsSwitching       bool               `json:"is_switching"`
	Error             *Error             `json:"error,omitempty"`
	Version           uint64             `json:"version"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	if s.CurrentTenant != nil {
		t := *s.CurrentTenant
		out.CurrentTenant = &t
	}
	if s.CurrentMembership != nil {
		m := *s.CurrentMembership
		out.CurrentMembership = &m
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	out.UserTenants = make([]tenant.Tenant, len(s.UserTenants))
	copy(out.UserTenants, s.UserTenants)
	return out
}

// CurrentTenantID returns the id of the active tenant or "".
func (s Snapshot) CurrentTenantID() string {
	if s.CurrentTenant == nil {
		return ""
	}
	return s.CurrentTenant.ID
}

// Consistent reports whether the current tenant, if any, is present in
// UserTenants.
func (s Snapshot) Consistent() bool {
	if s.CurrentTenant == nil {
		return true
	}
	return tenant.IndexOf(s.UserTenants, s.CurrentTenant.ID) >= 0
}

// View is the snapshot as handed to rendering collaborators, with the
// membership role already mapped to its badge tier.
type View struct {
	Snapshot
	RoleTier tenant.Tier `json:"role_tier,omitempty"`
}

// NewView builds a View from a snapshot.
func NewView(s Snapshot) View {
	v := View{Snapshot: s}
	if s.CurrentMembership != nil {
		v.RoleTier = tenant.DisplayTier(string(s.CurrentMembership.Role))
	}
	return v
}
