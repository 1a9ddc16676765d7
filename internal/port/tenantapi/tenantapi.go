// Package tenantapi defines the port for the external Tenant API.
package tenantapi

import (
	"context"

	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
)

// Client is the Tenant API as seen by one signed-in principal. Credentials are
// bound when the client is created, so none of the calls take them.
type Client interface {
	// ListTenants returns every tenant the principal belongs to, in API order.
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)

	// CurrentTenant returns the tenant and membership the API considers active.
	// A principal without an active tenant yields domain.ErrNotFound.
	CurrentTenant(ctx context.Context) (*tenant.Selection, error)

	// SwitchTenant makes tenantID the active tenant.
	SwitchTenant(ctx context.Context, tenantID string) (*tenant.Selection, error)

	CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error)
	UpdateTenant(ctx context.Context, tenantID string, req tenant.UpdateRequest) (*tenant.Tenant, error)
	InviteMember(ctx context.Context, tenantID string, req tenant.InviteMemberRequest) error
}

// Factory binds a Client to a principal's opaque session cookie.
type Factory interface {
	ForSession(cookie string) Client
}
