// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import "time"

// Status is the lifecycle status of a tenant.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Valid reports whether s is a known tenant status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Tenant is an organization/account boundary. Clients treat it as immutable
// except through explicit update calls.
type Tenant struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	LogoURL     string         `json:"logo_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// MembershipStatus is the state of a principal's membership.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipInactive MembershipStatus = "INACTIVE"
)

// Membership binds a principal to a tenant with a role.
// There is at most one membership per (tenant, principal) pair.
type Membership struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	UserID    string           `json:"user_id"`
	Role      Role             `json:"role"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsActive returns true if the membership is active.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == MembershipActive
}

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description,omitempty"`
	LogoURL     string         `json:"logo_url,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// UpdateRequest holds the fields that can be updated on a tenant.
// Nil pointers leave the field untouched.
type UpdateRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	LogoURL     *string        `json:"logo_url,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	Status      *Status        `json:"status,omitempty"`
}

// InviteMemberRequest invites an email address into a tenant with a role.
type InviteMemberRequest struct {
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Message string `json:"message,omitempty"`
}

// Selection is the tenant plus membership the API reports as active.
type Selection struct {
	Tenant     Tenant      `json:"tenant"`
	Membership *Membership `json:"membership,omitempty"`
}

// IndexOf returns the position of the tenant with the given id, or -1.
func IndexOf(tenants []Tenant, id string) int {
	for i := range tenants {
		if tenants[i].ID == id {
			return i
		}
	}
	return -1
}
