package tenant

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"

	"github.com/Strob0t/tenantdesk/internal/domain"
)

// SuggestSlug derives a URL-safe slug from a display name.
func SuggestSlug(name string) string {
	return slug.Make(name)
}

// Validate checks the required fields of a create request.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if strings.TrimSpace(r.Slug) == "" {
		return fmt.Errorf("%w: slug is required", domain.ErrValidation)
	}
	if !slug.IsSlug(r.Slug) {
		return fmt.Errorf("%w: invalid slug %q, try %q", domain.ErrValidation, r.Slug, SuggestSlug(r.Slug))
	}
	return nil
}

// Validate checks that an update request changes something and that the
// fields it changes are well-formed.
func (r *UpdateRequest) Validate() error {
	if r.Name == nil && r.Description == nil && r.LogoURL == nil && r.Settings == nil && r.Status == nil {
		return fmt.Errorf("%w: no fields to update", domain.ErrValidation)
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *r.Status)
	}
	return nil
}

// Validate checks the email and role of an invitation. Ownership is never
// granted by invitation.
func (r *InviteMemberRequest) Validate() error {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return fmt.Errorf("%w: invalid email %q", domain.ErrValidation, email)
	}
	if r.Role == "" {
		return fmt.Errorf("%w: role is required", domain.ErrValidation)
	}
	if !r.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrValidation, r.Role)
	}
	if r.Role == RoleOwner {
		return fmt.Errorf("%w: role %s cannot be granted by invitation", domain.ErrValidation, RoleOwner)
	}
	return nil
}
