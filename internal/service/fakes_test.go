package service

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/tenantdesk/internal/domain"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
	"github.com/Strob0t/tenantdesk/internal/port/database"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
	"github.com/Strob0t/tenantdesk/internal/port/tenantapi"
)

var (
	_ tenantapi.Client          = (*fakeTenantAPI)(nil)
	_ messagequeue.Publisher    = (*recordingPublisher)(nil)
	_ database.SwitchAuditStore = (*recordingAudit)(nil)
)

// fakeTenantAPI is an in-memory Tenant API. Gates let tests hold a call in
// flight; a nil gate means the call returns immediately.
type fakeTenantAPI struct {
	mu        sync.Mutex
	tenants   []tenant.Tenant
	currentID string
	listOnce  []tenant.Tenant // returned by the next ListTenants instead of tenants

	listErr    error
	currentErr error
	switchErr  error
	createErr  error
	updateErr  error
	inviteErr  error

	switchGate    chan struct{}
	switchStarted chan string
	ignoreCtx     bool // switch waits on the gate even after ctx ends
	listGate      chan struct{}
	listStarted   chan struct{}
	currentGate   chan struct{}
	currentStart  chan struct{}

	switchCalls  atomic.Int32
	listCalls    atomic.Int32
	currentCalls atomic.Int32
	createCalls  atomic.Int32
	updateCalls  atomic.Int32
	inviteCalls  atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32

	lastUpdateID string
	lastInvite   tenant.InviteMemberRequest
}

func newFakeTenantAPI(current string, tenants ...tenant.Tenant) *fakeTenantAPI {
	return &fakeTenantAPI{tenants: tenants, currentID: current}
}

func tnt(id string) tenant.Tenant {
	return tenant.Tenant{ID: id, Slug: id, Name: "Tenant " + id, Status: tenant.StatusActive}
}

func membershipFor(id string) *tenant.Membership {
	role := tenant.RoleMember
	if id == "a" {
		role = tenant.RoleOwner
	}
	return &tenant.Membership{ID: "m-" + id, TenantID: id, UserID: "u1", Role: role, Status: tenant.MembershipActive}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return &tenantapi.NetworkError{Op: "fake", Err: ctx.Err()}
	}
}

func notify[T any](ch chan T, v T) {
	if ch != nil {
		ch <- v
	}
}

func (f *fakeTenantAPI) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	f.listCalls.Add(1)
	notify(f.listStarted, struct{}{})
	if err := wait(ctx, f.listGate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listOnce != nil {
		out := f.listOnce
		f.listOnce = nil
		return out, nil
	}
	return append([]tenant.Tenant(nil), f.tenants...), nil
}

func (f *fakeTenantAPI) CurrentTenant(ctx context.Context) (*tenant.Selection, error) {
	f.currentCalls.Add(1)
	notify(f.currentStart, struct{}{})
	if err := wait(ctx, f.currentGate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	if f.currentID == "" {
		return nil, domain.ErrNotFound
	}
	i := tenant.IndexOf(f.tenants, f.currentID)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	return &tenant.Selection{Tenant: f.tenants[i], Membership: membershipFor(f.currentID)}, nil
}

func (f *fakeTenantAPI) SwitchTenant(ctx context.Context, tenantID string) (*tenant.Selection, error) {
	f.switchCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		maxSeen := f.maxInFlight.Load()
		if n <= maxSeen || f.maxInFlight.CompareAndSwap(maxSeen, n) {
			break
		}
	}

	notify(f.switchStarted, tenantID)
	if f.ignoreCtx {
		<-f.switchGate
	} else if err := wait(ctx, f.switchGate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.switchErr != nil {
		return nil, f.switchErr
	}
	i := tenant.IndexOf(f.tenants, tenantID)
	if i < 0 {
		return nil, &tenantapi.APIError{Op: "switch tenant", StatusCode: http.StatusForbidden, Message: "not a member"}
	}
	f.currentID = tenantID
	return &tenant.Selection{Tenant: f.tenants[i], Membership: membershipFor(tenantID)}, nil
}

func (f *fakeTenantAPI) CreateTenant(_ context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	f.createCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	t := tenant.Tenant{ID: "new-" + req.Slug, Slug: req.Slug, Name: req.Name, Status: tenant.StatusActive}
	f.tenants = append(f.tenants, t)
	return &t, nil
}

func (f *fakeTenantAPI) UpdateTenant(_ context.Context, tenantID string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	f.updateCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdateID = tenantID
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	i := tenant.IndexOf(f.tenants, tenantID)
	if i < 0 {
		return nil, &tenantapi.APIError{Op: "update tenant", StatusCode: http.StatusNotFound, Message: "tenant not found"}
	}
	if req.Name != nil {
		f.tenants[i].Name = *req.Name
	}
	if req.Description != nil {
		f.tenants[i].Description = *req.Description
	}
	t := f.tenants[i]
	return &t, nil
}

func (f *fakeTenantAPI) InviteMember(_ context.Context, _ string, req tenant.InviteMemberRequest) error {
	f.inviteCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastInvite = req
	return f.inviteErr
}

func (f *fakeTenantAPI) set(fn func(f *fakeTenantAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// fakeFactory hands out one shared fake client and remembers the cookies it saw.
type fakeFactory struct {
	mu      sync.Mutex
	api     *fakeTenantAPI
	cookies []string
}

func (f *fakeFactory) ForSession(cookie string) tenantapi.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, cookie)
	return f.api
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) Drain() error      { return nil }
func (p *recordingPublisher) IsConnected() bool { return true }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type recordingAudit struct {
	mu      sync.Mutex
	records []session.SwitchRecord
}

func (a *recordingAudit) RecordSwitch(_ context.Context, rec *session.SwitchRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *rec)
	return nil
}

func (a *recordingAudit) ListSwitches(_ context.Context, principal string, limit int) ([]session.SwitchRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []session.SwitchRecord
	for i := len(a.records) - 1; i >= 0 && len(out) < limit; i-- {
		if a.records[i].Principal == principal {
			out = append(out, a.records[i])
		}
	}
	return out, nil
}

func (a *recordingAudit) outcomes() []session.SwitchOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]session.SwitchOutcome, len(a.records))
	for i := range a.records {
		out[i] = a.records[i].Outcome
	}
	return out
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type broadcastCall struct {
	principal string
	eventType string
	payload   any
}

type recordingHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (h *recordingHub) BroadcastEvent(_ context.Context, principal, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, broadcastCall{principal, eventType, payload})
}

func (h *recordingHub) events() []broadcastCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]broadcastCall(nil), h.calls...)
}
