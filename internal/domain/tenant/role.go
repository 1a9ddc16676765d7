package tenant

import "strings"

// Role is a principal's role within a tenant.
type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
	RoleViewer  Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Tier is the visual emphasis a rendering collaborator uses for a role badge.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierOutline   Tier = "outline"
)

// DisplayTier maps a role string to its badge tier. Matching is
// case-insensitive; unknown roles fall back to outline.
func DisplayTier(role string) Tier {
	switch Role(strings.ToUpper(strings.TrimSpace(role))) {
	case RoleOwner:
		return TierPrimary
	case RoleAdmin:
		return TierSecondary
	default:
		return TierOutline
	}
}
