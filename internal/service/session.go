package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/tenantdesk/internal/adapter/otel"
	"github.com/Strob0t/tenantdesk/internal/domain"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
	"github.com/Strob0t/tenantdesk/internal/port/database"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
	"github.com/Strob0t/tenantdesk/internal/port/tenantapi"
)

// Switch lifecycle events.
const (
	eventBegin   = "begin"
	eventSucceed = "succeed"
	eventFail    = "fail"
)

const auditTimeout = 5 * time.Second

// SessionConfig tunes a SessionManager.
type SessionConfig struct {
	SwitchTimeout    time.Duration
	SubscriberBuffer int
}

// SessionDeps are the collaborators a SessionManager reports to. Nil
// fields fall back to no-ops.
type SessionDeps struct {
	Publisher messagequeue.Publisher
	Audit     database.SwitchAuditStore
	Metrics   *cfotel.Metrics

	// OnChange is called after every state change, in version order.
	OnChange func(ctx context.Context, snap session.Snapshot)
}

// SessionManager owns the tenant session of one principal: the tenants it
// belongs to, the active selection, and the switch lifecycle. It is safe for
// concurrent use. Network calls happen outside the state lock.
type SessionManager struct {
	principal string
	api       tenantapi.Client
	cfg       SessionConfig
	publisher messagequeue.Publisher
	audit     database.SwitchAuditStore
	metrics   *cfotel.Metrics
	onChange  func(ctx context.Context, snap session.Snapshot)
	now       func() time.Time

	group   singleflight.Group
	machine *fsm.FSM

	mu             sync.Mutex
	snap           session.Snapshot
	loading        int
	refreshIssued  uint64
	refreshApplied uint64
	generation     uint64 // bumped by every successful switch and by Reset
	epoch          uint64 // bumped by Reset
	subs           map[uint64]chan session.Snapshot
	nextSub        uint64
	closed         bool

	notifyMu     sync.Mutex
	lastNotified uint64
}

// NewSessionManager creates an empty session for principal backed by api.
func NewSessionManager(principal string, api tenantapi.Client, cfg SessionConfig, deps SessionDeps) *SessionManager {
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = 15 * time.Second
	}
	if cfg.SubscriberBuffer < 1 {
		cfg.SubscriberBuffer = 1
	}
	if deps.Publisher == nil {
		deps.Publisher = messagequeue.Nop{}
	}
	if deps.Audit == nil {
		deps.Audit = database.NopAuditStore{}
	}
	return &SessionManager{
		principal: principal,
		api:       api,
		cfg:       cfg,
		publisher: deps.Publisher,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		onChange:  deps.OnChange,
		now:       time.Now,
		machine:   newSwitchMachine(),
		snap: session.Snapshot{
			Principal:   principal,
			UserTenants: []tenant.Tenant{},
		},
		subs: make(map[uint64]chan session.Snapshot),
	}
}

func newSwitchMachine() *fsm.FSM {
	idle, switching := string(session.SwitchIdle), string(session.SwitchSwitching)
	return fsm.NewFSM(idle, fsm.Events{
		{Name: eventBegin, Src: []string{idle}, Dst: switching},
		{Name: eventSucceed, Src: []string{switching}, Dst: idle},
		{Name: eventFail, Src: []string{switching}, Dst: idle},
	}, fsm.Callbacks{})
}

// Principal returns the principal key this session belongs to.
func (m *SessionManager) Principal() string { return m.principal }

// Snapshot returns a deep copy of the current state.
func (m *SessionManager) Snapshot() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone()
}

// View returns the current state with presentation fields derived.
func (m *SessionManager) View() session.View {
	return session.NewView(m.Snapshot())
}

// SwitchState returns the current switch lifecycle state.
func (m *SessionManager) SwitchState() session.SwitchState {
	return session.SwitchState(m.machine.Current())
}

// Subscribe returns a channel receiving every new snapshot and a function
// that unsubscribes. A slow subscriber loses intermediate snapshots but
// always sees the latest.
func (m *SessionManager) Subscribe() (<-chan session.Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan session.Snapshot, m.cfg.SubscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Close closes every subscriber channel. The manager must not be used afterwards.
// Once Close returns OnChange is not running and will not be called again.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	// Wait out a notify already past its closed check.
	m.notifyMu.Lock()
	m.notifyMu.Unlock() //nolint:staticcheck // barrier
}

// Seed restores tenants and selection from a persisted snapshot. It only
// applies to a session that has not changed yet.
func (m *SessionManager) Seed(ctx context.Context, persisted session.Snapshot) bool {
	m.mu.Lock()
	if m.snap.Version != 0 || m.closed {
		m.mu.Unlock()
		return false
	}
	restored := persisted.Clone()
	m.snap.UserTenants = restored.UserTenants
	m.snap.CurrentTenant = restored.CurrentTenant
	m.snap.CurrentMembership = restored.CurrentMembership
	if !m.snap.Consistent() {
		m.snap.CurrentTenant, m.snap.CurrentMembership = nil, nil
	}
	snap := m.commitLocked()
	m.mu.Unlock()

	m.notify(ctx, snap)
	return true
}

// Reset empties the session and invalidates every in-flight response.
func (m *SessionManager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	m.generation++
	m.refreshApplied = m.refreshIssued
	m.snap.UserTenants = []tenant.Tenant{}
	m.snap.CurrentTenant = nil
	m.snap.CurrentMembership = nil
	m.snap.Error = nil
	snap := m.commitLocked()
	m.mu.Unlock()

	slog.InfoContext(ctx, "tenant session reset", "principal", m.principal)
	m.notify(ctx, snap)
}

// RefreshTenants replaces the tenant list with the API's. The selection is
// kept if the selected tenant is still listed and cleared otherwise.
// Concurrent calls share one request.
func (m *SessionManager) RefreshTenants(ctx context.Context) (err error) {
	ctx, span := cfotel.StartSessionSpan(ctx, "refresh_tenants", m.principal)
	defer func() { cfotel.EndSpan(span, err) }()

	m.mu.Lock()
	m.refreshIssued++
	ticket, gen, epoch := m.refreshIssued, m.generation, m.epoch
	snap := m.beginLoadingLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	tenants, err := m.listTenants(ctx)

	m.mu.Lock()
	m.endLoadingLocked()
	switch {
	case epoch != m.epoch:
		err = ErrStaleResponse
	case err != nil:
		m.setErrorLocked("refresh_tenants", err)
	case ticket <= m.refreshApplied:
		// A newer refresh already landed.
		slog.DebugContext(ctx, "older tenant list discarded", "principal", m.principal, "ticket", ticket)
	case gen != m.generation && m.snap.CurrentTenant != nil && tenant.IndexOf(tenants, m.snap.CurrentTenant.ID) < 0:
		err = ErrStaleResponse
		m.setErrorLocked("refresh_tenants", err)
	default:
		m.refreshApplied = ticket
		m.applyTenantsLocked(tenants)
	}
	snap = m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	if err != nil {
		m.logFailure(ctx, "refresh tenants", err)
		m.metrics.RefreshFailed(ctx, "refresh_tenants")
		return fmt.Errorf("refresh tenants: %w", err)
	}
	return nil
}

// listTenants shares one in-flight ListTenants call between callers. Each
// caller still stops waiting when its own context ends.
func (m *SessionManager) listTenants(ctx context.Context) ([]tenant.Tenant, error) {
	ch := m.group.DoChan("tenants", func() (any, error) {
		return m.api.ListTenants(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]tenant.Tenant)), nil
	case <-ctx.Done():
		return nil, &tenantapi.NetworkError{Op: "list tenants", Err: ctx.Err()}
	}
}

// applyTenantsLocked must be called with m.mu held.
func (m *SessionManager) applyTenantsLocked(tenants []tenant.Tenant) {
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	m.snap.UserTenants = tenants
	m.snap.Error = nil
	if m.snap.CurrentTenant == nil {
		return
	}
	if i := tenant.IndexOf(tenants, m.snap.CurrentTenant.ID); i >= 0 {
		t := tenants[i]
		m.snap.CurrentTenant = &t
		return
	}
	m.snap.CurrentTenant = nil
	m.snap.CurrentMembership = nil
}

// RefreshCurrentTenant re-fetches the active tenant and membership and merges
// them into the session. While no switch is pending the API's selection wins.
func (m *SessionManager) RefreshCurrentTenant(ctx context.Context) (err error) {
	ctx, span := cfotel.StartSessionSpan(ctx, "refresh_current", m.principal)
	defer func() { cfotel.EndSpan(span, err) }()

	m.mu.Lock()
	gen, epoch := m.generation, m.epoch
	snap := m.beginLoadingLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	sel, err := m.api.CurrentTenant(ctx)
	if err == nil && sel == nil {
		err = domain.ErrNotFound
	}

	m.mu.Lock()
	m.endLoadingLocked()
	switching := m.snap.IsSwitching
	switch {
	case epoch != m.epoch:
		err = ErrStaleResponse
	case errors.Is(err, domain.ErrNotFound) && gen == m.generation && !switching:
		m.snap.CurrentTenant = nil
		m.snap.CurrentMembership = nil
		m.snap.Error = nil
		err = nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		m.setErrorLocked("refresh_current", err)
	case gen != m.generation:
		err = ErrStaleResponse
		m.setErrorLocked("refresh_current", err)
	case err != nil, switching && sel.Tenant.ID != m.snap.CurrentTenantID():
		// The pending switch decides the selection.
		err = ErrStaleResponse
	default:
		m.selectLocked(sel)
	}
	snap = m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	if err != nil {
		m.logFailure(ctx, "refresh current tenant", err)
		m.metrics.RefreshFailed(ctx, "refresh_current")
		return fmt.Errorf("refresh current tenant: %w", err)
	}
	return nil
}

// selectLocked makes sel the active selection, adding its tenant to the
// list when absent. Must be called with m.mu held.
func (m *SessionManager) selectLocked(sel *tenant.Selection) {
	t := sel.Tenant
	m.upsertLocked(t)
	m.snap.CurrentTenant = &t
	if sel.Membership != nil {
		mem := *sel.Membership
		m.snap.CurrentMembership = &mem
	} else {
		m.snap.CurrentMembership = nil
	}
	m.snap.Error = nil
}

// upsertLocked replaces the listed tenant with t's id or appends t.
func (m *SessionManager) upsertLocked(t tenant.Tenant) {
	if i := tenant.IndexOf(m.snap.UserTenants, t.ID); i >= 0 {
		m.snap.UserTenants[i] = t
		return
	}
	m.snap.UserTenants = append(m.snap.UserTenants, t)
}

// SwitchTenant makes tenantID the active tenant. Switching to the current
// tenant succeeds without a request. A call made while another switch is
// pending fails with ErrSwitchInProgress without contacting the API. On
// failure the previous selection is kept.
func (m *SessionManager) SwitchTenant(ctx context.Context, tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return m.fail(ctx, "switch", fmt.Errorf("switch tenant: %w: tenant id is required", domain.ErrValidation))
	}

	m.mu.Lock()
	from := m.snap.CurrentTenantID()
	if tenantID == from {
		m.mu.Unlock()
		m.recordSwitch(ctx, from, tenantID, session.OutcomeNoop, nil, 0)
		return nil
	}
	if err := m.machine.Event(context.Background(), eventBegin); err != nil {
		m.setErrorLocked("switch", ErrSwitchInProgress)
		snap := m.commitLocked()
		m.mu.Unlock()
		m.notify(ctx, snap)

		slog.InfoContext(ctx, "tenant switch rejected", "principal", m.principal, "to_tenant_id", tenantID)
		m.metrics.RecordSwitch(ctx, string(session.OutcomeRejected), 0)
		m.recordSwitch(ctx, from, tenantID, session.OutcomeRejected, ErrSwitchInProgress, 0)
		return fmt.Errorf("switch tenant %s: %w", tenantID, ErrSwitchInProgress)
	}
	m.snap.IsSwitching = true
	epoch := m.epoch
	snap := m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	ctx, span := cfotel.StartSwitchSpan(ctx, m.principal, from, tenantID)
	slog.InfoContext(ctx, "tenant switch started", "principal", m.principal, "from_tenant_id", from, "to_tenant_id", tenantID)
	m.metrics.SwitchStarted(ctx)
	start := m.now()

	sel, err := m.requestSwitch(ctx, tenantID)
	elapsed := m.now().Sub(start)

	m.mu.Lock()
	if err == nil && epoch != m.epoch {
		err = ErrStaleResponse
	}
	event := eventSucceed
	if err != nil {
		event = eventFail
	}
	if fsmErr := m.machine.Event(context.Background(), event); fsmErr != nil {
		slog.Error("switch lifecycle out of sync", "principal", m.principal, "event", event, "error", fsmErr)
	}
	m.snap.IsSwitching = false
	if err != nil {
		m.setErrorLocked("switch", err)
	} else {
		m.selectLocked(sel)
		m.generation++
	}
	snap = m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)
	cfotel.EndSpan(span, err)

	outcome := session.OutcomeSucceeded
	if err != nil {
		outcome = session.OutcomeFailed
	}
	m.metrics.RecordSwitch(ctx, string(outcome), elapsed.Seconds())
	m.recordSwitch(ctx, from, tenantID, outcome, err, elapsed)

	if err != nil {
		m.logFailure(ctx, "tenant switch", err, "to_tenant_id", tenantID)
		return fmt.Errorf("switch tenant %s: %w", tenantID, err)
	}
	slog.InfoContext(ctx, "tenant switch succeeded", "principal", m.principal,
		"from_tenant_id", from, "to_tenant_id", sel.Tenant.ID, "duration", elapsed)
	m.publishEvent(ctx, messagequeue.SubjectTenantSwitched, session.TenantEvent{TenantID: sel.Tenant.ID, FromTenantID: from})
	return nil
}

// requestSwitch bounds the API call by the switch timeout. It returns when
// the deadline passes even if the client ignores its context; a late
// answer is dropped.
func (m *SessionManager) requestSwitch(ctx context.Context, tenantID string) (*tenant.Selection, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SwitchTimeout)
	defer cancel()

	type result struct {
		sel *tenant.Selection
		err error
	}
	done := make(chan result, 1)
	go func() {
		sel, err := m.api.SwitchTenant(ctx, tenantID)
		done <- result{sel, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.sel == nil {
			return nil, &tenantapi.APIError{Op: "switch tenant", StatusCode: 200, Message: "switch response carried no tenant"}
		}
		return r.sel, r.err
	case <-ctx.Done():
		return nil, &tenantapi.NetworkError{Op: "switch tenant", Err: ctx.Err()}
	}
}

// CreateTenant validates and creates a tenant, then adds it to the list.
func (m *SessionManager) CreateTenant(ctx context.Context, req tenant.CreateRequest) (_ *tenant.Tenant, err error) {
	ctx, span := cfotel.StartSessionSpan(ctx, "create_tenant", m.principal)
	defer func() { cfotel.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, m.fail(ctx, "create_tenant", fmt.Errorf("create tenant: %w", err))
	}

	t, err := m.api.CreateTenant(ctx, req)
	if err != nil {
		return nil, m.fail(ctx, "create_tenant", fmt.Errorf("create tenant: %w", err))
	}

	m.mu.Lock()
	m.upsertLocked(*t)
	m.snap.Error = nil
	snap := m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	slog.InfoContext(ctx, "tenant created", "principal", m.principal, "tenant_id", t.ID, "slug", t.Slug)
	m.publishEvent(ctx, messagequeue.SubjectTenantCreated, session.TenantEvent{TenantID: t.ID})
	return t, nil
}

// UpdateTenant applies req to the current tenant and replaces its record.
func (m *SessionManager) UpdateTenant(ctx context.Context, req tenant.UpdateRequest) (_ *tenant.Tenant, err error) {
	ctx, span := cfotel.StartSessionSpan(ctx, "update_tenant", m.principal)
	defer func() { cfotel.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, m.fail(ctx, "update_tenant", fmt.Errorf("update tenant: %w", err))
	}
	current := m.Snapshot().CurrentTenantID()
	if current == "" {
		return nil, m.fail(ctx, "update_tenant", fmt.Errorf("update tenant: %w: no current tenant", domain.ErrValidation))
	}

	t, err := m.api.UpdateTenant(ctx, current, req)
	if err != nil {
		return nil, m.fail(ctx, "update_tenant", fmt.Errorf("update tenant: %w", err))
	}

	m.mu.Lock()
	if i := tenant.IndexOf(m.snap.UserTenants, t.ID); i >= 0 {
		m.snap.UserTenants[i] = *t
	}
	if m.snap.CurrentTenantID() == t.ID {
		updated := *t
		m.snap.CurrentTenant = &updated
	}
	m.snap.Error = nil
	snap := m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	slog.InfoContext(ctx, "tenant updated", "principal", m.principal, "tenant_id", t.ID)
	m.publishEvent(ctx, messagequeue.SubjectTenantUpdated, session.TenantEvent{TenantID: t.ID})
	return t, nil
}

// InviteMember invites someone to the current tenant. Tenants and selection
// are unaffected.
func (m *SessionManager) InviteMember(ctx context.Context, req tenant.InviteMemberRequest) (err error) {
	ctx, span := cfotel.StartSessionSpan(ctx, "invite_member", m.principal)
	defer func() { cfotel.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return m.fail(ctx, "invite_member", fmt.Errorf("invite member: %w", err))
	}
	current := m.Snapshot().CurrentTenantID()
	if current == "" {
		return m.fail(ctx, "invite_member", fmt.Errorf("invite member: %w: no current tenant", domain.ErrValidation))
	}

	if err := m.api.InviteMember(ctx, current, req); err != nil {
		return m.fail(ctx, "invite_member", fmt.Errorf("invite member: %w", err))
	}

	m.mu.Lock()
	var snap session.Snapshot
	cleared := m.snap.Error != nil
	if cleared {
		m.snap.Error = nil
		snap = m.commitLocked()
	}
	m.mu.Unlock()
	if cleared {
		m.notify(ctx, snap)
	}

	slog.InfoContext(ctx, "member invited", "principal", m.principal, "tenant_id", current, "role", string(req.Role))
	m.publishEvent(ctx, messagequeue.SubjectTenantMemberInvited, session.TenantEvent{
		TenantID: current,
		Email:    req.Email,
		Role:     string(req.Role),
	})
	return nil
}

// fail records err on the snapshot and returns it.
func (m *SessionManager) fail(ctx context.Context, op string, err error) error {
	m.mu.Lock()
	m.setErrorLocked(op, err)
	snap := m.commitLocked()
	m.mu.Unlock()
	m.notify(ctx, snap)

	m.logFailure(ctx, strings.ReplaceAll(op, "_", " "), err)
	return err
}

// setErrorLocked must be called with m.mu held.
func (m *SessionManager) setErrorLocked(op string, err error) {
	m.snap.Error = &session.Error{
		Kind:    ClassifyError(err),
		Op:      op,
		Message: ErrorMessage(err),
		At:      m.now().UTC(),
	}
}

func (m *SessionManager) beginLoadingLocked() session.Snapshot {
	m.loading++
	m.snap.IsLoading = true
	return m.commitLocked()
}

func (m *SessionManager) endLoadingLocked() {
	m.loading--
	m.snap.IsLoading = m.loading > 0
}

// commitLocked bumps the version, fans the new snapshot out to subscribers
// and returns a copy for notify. Must be called with m.mu held.
func (m *SessionManager) commitLocked() session.Snapshot {
	m.snap.Version++
	m.snap.UpdatedAt = m.now().UTC()
	snap := m.snap.Clone()
	for _, ch := range m.subs {
		offer(ch, snap.Clone())
	}
	return snap
}

// offer delivers snap without blocking, dropping the oldest queued snapshot
// when the channel is full.
func offer(ch chan session.Snapshot, snap session.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// notify passes snap to OnChange unless a newer version was already passed
// or the manager is closed.
func (m *SessionManager) notify(ctx context.Context, snap session.Snapshot) {
	if m.onChange == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed || snap.Version <= m.lastNotified {
		return
	}
	m.lastNotified = snap.Version
	m.onChange(ctx, snap)
}

func (m *SessionManager) logFailure(ctx context.Context, op string, err error, attrs ...any) {
	kind := ClassifyError(err)
	args := append([]any{"principal", m.principal, "kind", kind, "error", err}, attrs...)
	if kind == session.KindStale {
		slog.DebugContext(ctx, op+" discarded", args...)
		return
	}
	slog.WarnContext(ctx, op+" failed", args...)
}

func (m *SessionManager) publishEvent(ctx context.Context, subject string, ev session.TenantEvent) {
	ev.EventID = uuid.NewString()
	ev.Principal = m.principal
	ev.OccurredAt = m.now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("marshal tenant event", "subject", subject, "error", err)
		return
	}
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Warn("invalid tenant event", "subject", subject, "error", err)
		return
	}
	if err := m.publisher.Publish(context.WithoutCancel(ctx), subject, data); err != nil {
		slog.WarnContext(ctx, "publish tenant event", "subject", subject, "error", err)
	}
}

func (m *SessionManager) recordSwitch(ctx context.Context, from, to string, outcome session.SwitchOutcome, err error, elapsed time.Duration) {
	rec := &session.SwitchRecord{
		ID:           uuid.NewString(),
		Principal:    m.principal,
		FromTenantID: from,
		ToTenantID:   to,
		Outcome:      outcome,
		Duration:     elapsed,
		CreatedAt:    m.now().UTC(),
	}
	if err != nil {
		rec.Error = ErrorMessage(err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := m.audit.RecordSwitch(ctx, rec); err != nil {
		slog.WarnContext(ctx, "record tenant switch", "principal", m.principal, "outcome", outcome, "error", err)
	}
}
