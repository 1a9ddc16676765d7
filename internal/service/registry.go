package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Strob0t/tenantdesk/internal/domain"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/port/broadcast"
	"github.com/Strob0t/tenantdesk/internal/port/cache"
	"github.com/Strob0t/tenantdesk/internal/port/tenantapi"
)

const snapshotKeyPrefix = "session:"

// PrincipalKey derives the key a session is stored under from its cookie.
// The raw cookie is never used as a key or logged.
func PrincipalKey(cookie string) string {
	sum := blake2b.Sum256([]byte(cookie))
	return hex.EncodeToString(sum[:])
}

// SessionRegistry holds one SessionManager per signed-in principal and wires
// each to snapshot persistence and live broadcasting.
type SessionRegistry struct {
	factory     tenantapi.Factory
	cfg         SessionConfig
	deps        SessionDeps
	cache       cache.Cache
	hub         broadcast.Broadcaster
	snapshotTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*SessionManager
}

// NewSessionRegistry creates a registry. snapshots and hub may be nil.
func NewSessionRegistry(
	factory tenantapi.Factory,
	cfg SessionConfig,
	deps SessionDeps,
	snapshots cache.Cache,
	hub broadcast.Broadcaster,
	snapshotTTL time.Duration,
) *SessionRegistry {
	return &SessionRegistry{
		factory:     factory,
		cfg:         cfg,
		deps:        deps,
		cache:       snapshots,
		hub:         hub,
		snapshotTTL: snapshotTTL,
		sessions:    make(map[string]*SessionManager),
	}
}

// OnSessionStart returns the principal's session, creating it if needed, and
// refreshes it. A new session is seeded from its persisted snapshot first.
// Refresh failures are returned but the session stays registered.
func (r *SessionRegistry) OnSessionStart(ctx context.Context, cookie string) (*SessionManager, error) {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return nil, fmt.Errorf("start session: %w: session cookie is required", domain.ErrValidation)
	}
	m, created := r.getOrCreate(cookie)
	if created {
		r.seed(ctx, m)
		slog.InfoContext(ctx, "tenant session started", "principal", m.Principal())
	}
	return m, r.refresh(ctx, m)
}

// OnPrincipalChange resets the session bound to cookie and loads it again.
func (r *SessionRegistry) OnPrincipalChange(ctx context.Context, cookie string) (*SessionManager, error) {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return nil, fmt.Errorf("change principal: %w: session cookie is required", domain.ErrValidation)
	}
	m, _ := r.getOrCreate(cookie)
	m.Reset(ctx)
	return m, r.refresh(ctx, m)
}

// OnSessionEnd tears the session down and forgets its persisted snapshot.
func (r *SessionRegistry) OnSessionEnd(ctx context.Context, cookie string) error {
	key := PrincipalKey(strings.TrimSpace(cookie))

	r.mu.Lock()
	m, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if ok {
		// Close first so an in-flight operation cannot persist after the delete.
		m.Close()
	}
	r.deleteSnapshot(ctx, key)
	if !ok {
		return ErrNoSession
	}

	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, key, session.EventSessionEnded, session.EndedEvent{Principal: key})
	}
	r.deps.Metrics.SessionsDelta(ctx, -1)
	slog.InfoContext(ctx, "tenant session ended", "principal", key)
	return nil
}

// Get returns the session for cookie or ErrNoSession.
func (r *SessionRegistry) Get(cookie string) (*SessionManager, error) {
	return r.GetByKey(PrincipalKey(strings.TrimSpace(cookie)))
}

// GetByKey returns the session stored under a principal key or ErrNoSession.
func (r *SessionRegistry) GetByKey(key string) (*SessionManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[key]
	if !ok {
		return nil, ErrNoSession
	}
	return m, nil
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session. Persisted snapshots are kept.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, m := range r.sessions {
		m.Close()
		delete(r.sessions, key)
	}
}

func (r *SessionRegistry) getOrCreate(cookie string) (*SessionManager, bool) {
	key := PrincipalKey(cookie)

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.sessions[key]; ok {
		return m, false
	}

	deps := r.deps
	deps.OnChange = func(ctx context.Context, snap session.Snapshot) {
		r.persist(ctx, key, snap)
		if r.deps.OnChange != nil {
			r.deps.OnChange(ctx, snap)
		}
	}
	m := NewSessionManager(key, r.factory.ForSession(cookie), r.cfg, deps)
	r.sessions[key] = m
	r.deps.Metrics.SessionsDelta(context.Background(), 1)
	return m, true
}

// refresh loads tenants, then the current selection. Both always run; the
// first failure is returned.
func (r *SessionRegistry) refresh(ctx context.Context, m *SessionManager) error {
	errTenants := m.RefreshTenants(ctx)
	errCurrent := m.RefreshCurrentTenant(ctx)
	if errTenants != nil {
		return errTenants
	}
	return errCurrent
}

func (r *SessionRegistry) seed(ctx context.Context, m *SessionManager) {
	if r.cache == nil {
		return
	}
	var snap session.Snapshot
	found, err := cache.GetJSON(ctx, r.cache, snapshotKeyPrefix+m.Principal(), &snap)
	if err != nil {
		slog.WarnContext(ctx, "load persisted session", "principal", m.Principal(), "error", err)
		return
	}
	if found && m.Seed(ctx, snap) {
		slog.DebugContext(ctx, "session seeded from cache", "principal", m.Principal(), "tenants", len(snap.UserTenants))
	}
}

func (r *SessionRegistry) persist(ctx context.Context, key string, snap session.Snapshot) {
	if r.cache != nil && !snap.IsLoading && !snap.IsSwitching {
		stored := snap
		stored.Error = nil
		if err := cache.SetJSON(context.WithoutCancel(ctx), r.cache, snapshotKeyPrefix+key, stored, r.snapshotTTL); err != nil {
			slog.WarnContext(ctx, "persist session snapshot", "principal", key, "error", err)
		}
	}
	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, key, session.EventSessionChanged, session.ChangedEvent{View: session.NewView(snap)})
	}
}

func (r *SessionRegistry) deleteSnapshot(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(context.WithoutCancel(ctx), snapshotKeyPrefix+key); err != nil {
		slog.WarnContext(ctx, "delete session snapshot", "principal", key, "error", err)
	}
}
