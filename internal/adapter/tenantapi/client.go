// Package tenantapi provides an HTTP client for the external Tenant API.
package tenantapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/tenantdesk/internal/config"
	"github.com/Strob0t/tenantdesk/internal/domain"
	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
	"github.com/Strob0t/tenantdesk/internal/port/tenantapi"
	"github.com/Strob0t/tenantdesk/internal/resilience"
)

// maxErrorBody caps how much of a non-envelope error body ends up in a message.
const maxErrorBody = 512

// envelope is the response wrapper used by every Tenant API endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message"`
	Error   *struct {
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error,omitempty"`
}

type selection struct {
	Tenant     *tenant.Tenant     `json:"tenant"`
	Membership *tenant.Membership `json:"membership"`
}

// Factory creates Tenant API clients bound to a session cookie. All clients
// from one factory share the HTTP transport and circuit breaker.
type Factory struct {
	baseURL    string
	cookieName string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ tenantapi.Factory = (*Factory)(nil)

// NewFactory creates a Factory from the tenant_api config section.
func NewFactory(cfg config.TenantAPI) *Factory {
	return &Factory{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cookieName: cfg.CookieName,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls. Only
// transport failures and 5xx responses count toward opening it.
func (f *Factory) SetBreaker(b *resilience.Breaker) {
	f.breaker = b.CountOnly(Countable)
}

// ForSession returns a client that authenticates as the given cookie.
func (f *Factory) ForSession(cookie string) tenantapi.Client {
	return &Client{f: f, cookie: cookie}
}

// Countable reports whether err indicates the Tenant API itself is failing.
// Caller cancellation and application rejections are not counted.
func Countable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *tenantapi.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *tenantapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// Client talks to the Tenant API as one principal.
type Client struct {
	f      *Factory
	cookie string
}

var _ tenantapi.Client = (*Client)(nil)

// ListTenants returns the tenants the principal belongs to.
func (c *Client) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	const op = "list tenants"
	data, err := c.doRequest(ctx, op, http.MethodGet, "/tenants", nil)
	if err != nil {
		return nil, err
	}

	var out []tenant.Tenant
	if err := decodeData(op, data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []tenant.Tenant{}
	}
	return out, nil
}

// CurrentTenant returns the active tenant and the principal's membership in it.
func (c *Client) CurrentTenant(ctx context.Context) (*tenant.Selection, error) {
	const op = "current tenant"
	data, err := c.doRequest(ctx, op, http.MethodGet, "/tenants/current", nil)
	if err != nil {
		var apiErr *tenantapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: no current tenant", domain.ErrNotFound)
		}
		return nil, err
	}
	return decodeSelection(op, data)
}

// SwitchTenant asks the API to make tenantID the principal's active tenant.
func (c *Client) SwitchTenant(ctx context.Context, tenantID string) (*tenant.Selection, error) {
	const op = "switch tenant"
	body, err := json.Marshal(map[string]string{"tenant_id": tenantID})
	if err != nil {
		return nil, fmt.Errorf("marshal switch: %w", err)
	}

	data, err := c.doRequest(ctx, op, http.MethodPost, "/tenants/switch", body)
	if err != nil {
		return nil, err
	}
	sel, err := decodeSelection(op, data)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &tenantapi.APIError{Op: op, StatusCode: http.StatusOK, Message: "switch response carried no tenant"}
	}
	return sel, err
}

// CreateTenant creates a tenant owned by the principal.
func (c *Client) CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	const op = "create tenant"
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal create: %w", err)
	}

	data, err := c.doRequest(ctx, op, http.MethodPost, "/tenants", body)
	if err != nil {
		return nil, err
	}
	var t tenant.Tenant
	if err := decodeData(op, data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTenant applies a partial update to a tenant.
func (c *Client) UpdateTenant(ctx context.Context, tenantID string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	const op = "update tenant"
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}

	data, err := c.doRequest(ctx, op, http.MethodPut, "/tenants/"+url.PathEscape(tenantID), body)
	if err != nil {
		return nil, err
	}
	var t tenant.Tenant
	if err := decodeData(op, data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// InviteMember sends an invitation to join a tenant.
func (c *Client) InviteMember(ctx context.Context, tenantID string, req tenant.InviteMemberRequest) error {
	const op = "invite member"
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal invite: %w", err)
	}

	_, err = c.doRequest(ctx, op, http.MethodPost, "/tenants/"+url.PathEscape(tenantID)+"/invitations", body)
	return err
}

// doRequest performs one call and unwraps the envelope, returning its data.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body []byte) (json.RawMessage, error) {
	var result json.RawMessage
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.f.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cookie != "" {
			req.AddCookie(&http.Cookie{Name: c.f.cookieName, Value: c.cookie})
		}

		resp, err := c.f.httpClient.Do(req)
		if err != nil {
			return &tenantapi.NetworkError{Op: op, Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &tenantapi.NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
		}

		data, err := unwrap(op, resp.StatusCode, raw)
		if err != nil {
			return err
		}
		result = data
		return nil
	}

	if c.f.breaker != nil {
		if err := c.f.breaker.Execute(call); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// unwrap decodes the envelope and turns failures into *tenantapi.APIError.
func unwrap(op string, status int, raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		msg := "malformed response envelope"
		if status >= http.StatusBadRequest {
			msg = truncate(strings.TrimSpace(string(raw)))
		}
		return nil, &tenantapi.APIError{Op: op, StatusCode: status, Message: msg}
	}

	if status >= http.StatusBadRequest || !env.Success {
		apiErr := &tenantapi.APIError{Op: op, StatusCode: status, Message: env.Message}
		if env.Error != nil {
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
			apiErr.Details = env.Error.Details
		}
		return nil, apiErr
	}
	return env.Data, nil
}

func decodeData(op string, data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return &tenantapi.APIError{Op: op, StatusCode: http.StatusOK, Message: "response carried no data"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &tenantapi.APIError{Op: op, StatusCode: http.StatusOK, Message: "decode data: " + err.Error()}
	}
	return nil
}

func decodeSelection(op string, data json.RawMessage) (*tenant.Selection, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%w: no current tenant", domain.ErrNotFound)
	}
	var sel selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, &tenantapi.APIError{Op: op, StatusCode: http.StatusOK, Message: "decode data: " + err.Error()}
	}
	if sel.Tenant == nil {
		return nil, fmt.Errorf("%w: no current tenant", domain.ErrNotFound)
	}
	return &tenant.Selection{Tenant: *sel.Tenant, Membership: sel.Membership}, nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
