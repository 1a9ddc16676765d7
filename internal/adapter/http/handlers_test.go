package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	cfhttp "github.com/Strob0t/tenantdesk/internal/adapter/http"
	"github.com/Strob0t/tenantdesk/internal/adapter/tenantapi"
	"github.com/Strob0t/tenantdesk/internal/adapter/ws"
	"github.com/Strob0t/tenantdesk/internal/config"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
	"github.com/Strob0t/tenantdesk/internal/middleware"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
	"github.com/Strob0t/tenantdesk/internal/service"
)

const cookieName = "session"

// stubTenantAPI is an in-memory Tenant API speaking the response envelope.
type stubTenantAPI struct {
	mu         sync.Mutex
	tenants    []tenant.Tenant
	current    string
	switchGate chan struct{}
	switchSeen chan struct{}
}

func newStubTenantAPI() *stubTenantAPI {
	return &stubTenantAPI{
		tenants: []tenant.Tenant{
			{ID: "a", Slug: "acme", Name: "Acme", Status: tenant.StatusActive},
			{ID: "b", Slug: "beta", Name: "Beta", Status: tenant.StatusActive},
		},
		current: "a",
	}
}

func envelope(w http.ResponseWriter, status int, data any, errMsg string) {
	body := map[string]any{"success": errMsg == "", "message": "", "data": data}
	if errMsg != "" {
		body["error"] = map[string]any{"message": errMsg}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *stubTenantAPI) selection(id string) map[string]any {
	for _, t := range s.tenants {
		if t.ID == id {
			role := tenant.RoleMember
			if id == "a" {
				role = tenant.RoleOwner
			}
			return map[string]any{
				"tenant":     t,
				"membership": tenant.Membership{ID: "m-" + id, TenantID: id, UserID: "u1", Role: role, Status: tenant.MembershipActive},
			}
		}
	}
	return nil
}

func (s *stubTenantAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tenants", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		envelope(w, http.StatusOK, s.tenants, "")
	})
	mux.HandleFunc("GET /tenants/current", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sel := s.selection(s.current); sel != nil {
			envelope(w, http.StatusOK, sel, "")
			return
		}
		envelope(w, http.StatusNotFound, nil, "no current tenant")
	})
	mux.HandleFunc("POST /tenants/switch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TenantID string `json:"tenant_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if s.switchSeen != nil {
			s.switchSeen <- struct{}{}
		}
		if s.switchGate != nil {
			<-s.switchGate
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		sel := s.selection(req.TenantID)
		if sel == nil {
			envelope(w, http.StatusForbidden, nil, "not a member of this tenant")
			return
		}
		s.current = req.TenantID
		envelope(w, http.StatusOK, sel, "")
	})
	mux.HandleFunc("POST /tenants", func(w http.ResponseWriter, r *http.Request) {
		var req tenant.CreateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		defer s.mu.Unlock()
		t := tenant.Tenant{ID: "t-" + req.Slug, Slug: req.Slug, Name: req.Name, Status: tenant.StatusActive}
		s.tenants = append(s.tenants, t)
		envelope(w, http.StatusCreated, t, "")
	})
	mux.HandleFunc("PUT /tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req tenant.UpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		defer s.mu.Unlock()
		i := tenant.IndexOf(s.tenants, r.PathValue("id"))
		if i < 0 {
			envelope(w, http.StatusNotFound, nil, "tenant not found")
			return
		}
		if req.Name != nil {
			s.tenants[i].Name = *req.Name
		}
		envelope(w, http.StatusOK, s.tenants[i], "")
	})
	mux.HandleFunc("POST /tenants/{id}/invitations", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, http.StatusOK, nil, "")
	})
	return mux
}

type memAudit struct {
	mu        sync.Mutex
	records   []session.SwitchRecord
	lastLimit int
}

func (a *memAudit) RecordSwitch(_ context.Context, rec *session.SwitchRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *rec)
	return nil
}

func (a *memAudit) ListSwitches(_ context.Context, principal string, limit int) ([]session.SwitchRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastLimit = limit
	var out []session.SwitchRecord
	for i := len(a.records) - 1; i >= 0 && len(out) < limit; i-- {
		if a.records[i].Principal == principal {
			out = append(out, a.records[i])
		}
	}
	return out, nil
}

type testBFF struct {
	api      *stubTenantAPI
	apiSrv   *httptest.Server
	router   http.Handler
	sessions *service.SessionRegistry
	audit    *memAudit
}

func newTestBFF(t *testing.T) *testBFF {
	t.Helper()
	api := newStubTenantAPI()
	apiSrv := httptest.NewServer(api.handler())
	t.Cleanup(apiSrv.Close)

	factory := tenantapi.NewFactory(config.TenantAPI{BaseURL: apiSrv.URL, CookieName: cookieName, Timeout: 2 * time.Second})
	audit := &memAudit{}
	reg := service.NewSessionRegistry(factory,
		service.SessionConfig{SwitchTimeout: 2 * time.Second, SubscriberBuffer: 4},
		service.SessionDeps{Audit: audit}, nil, nil, time.Hour)
	t.Cleanup(reg.Close)

	hub := ws.NewHub(nil, func(r *http.Request) (string, bool) { return middleware.PrincipalKey(r.Context()) })
	h := &cfhttp.Handlers{Sessions: reg, Audit: audit, Publisher: messagequeue.Nop{}, BodyLimit: 1 << 10, AuditLimit: 50}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Session(cookieName, service.PrincipalKey))
	cfhttp.MountRoutes(r, h, hub.HandleWS)

	return &testBFF{api: api, apiSrv: apiSrv, router: r, sessions: reg, audit: audit}
}

func (b *testBFF) do(t *testing.T, method, path, cookie string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response (%d): %v", rec.Code, err)
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (b *testBFF) start(t *testing.T, cookie string) session.View {
	t.Helper()
	rec := b.do(t, http.MethodPost, "/api/v1/session", cookie, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start session: %d %s", rec.Code, rec.Body.String())
	}
	return decode[session.View](t, rec)
}

func TestHealth(t *testing.T) {
	b := newTestBFF(t)
	rec := b.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRequiresCookie(t *testing.T) {
	b := newTestBFF(t)
	rec := b.do(t, http.MethodGet, "/api/v1/session", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if decode[errorBody](t, rec).Kind != "no_session" {
		t.Fatal("expected no_session kind")
	}
}

func TestGetBeforeStart(t *testing.T) {
	b := newTestBFF(t)
	rec := b.do(t, http.MethodGet, "/api/v1/session", "c1", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStartSession(t *testing.T) {
	b := newTestBFF(t)
	view := b.start(t, "c1")

	if view.CurrentTenantID() != "a" || len(view.UserTenants) != 2 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.RoleTier != tenant.TierPrimary {
		t.Fatalf("expected primary tier for owner, got %q", view.RoleTier)
	}
	if view.IsLoading || view.IsSwitching {
		t.Fatal("expected settled view")
	}

	rec := b.do(t, http.MethodGet, "/api/v1/session", "c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSwitchTenant(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	rec := b.do(t, http.MethodPost, "/api/v1/session/switch", "c1", map[string]string{"tenant_id": "b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	view := decode[session.View](t, rec)
	if view.CurrentTenantID() != "b" || view.IsSwitching {
		t.Fatalf("unexpected view after switch %+v", view)
	}
	if view.RoleTier != tenant.TierOutline {
		t.Fatalf("expected outline tier for member, got %q", view.RoleTier)
	}

	rec = b.do(t, http.MethodGet, "/api/v1/session/switches", "c1", nil)
	records := decode[[]session.SwitchRecord](t, rec)
	if len(records) != 1 || records[0].Outcome != session.OutcomeSucceeded || records[0].ToTenantID != "b" {
		t.Fatalf("unexpected audit %+v", records)
	}
}

func TestSwitchTenantErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"empty id", map[string]string{"tenant_id": ""}, http.StatusBadRequest, "validation", "tenant id is required"},
		{"not a member", map[string]string{"tenant_id": "zzz"}, http.StatusUnprocessableEntity, "application", "not a member of this tenant"},
		{"bad json", "{", http.StatusBadRequest, "validation", "invalid request body"},
		{"too large", `{"tenant_id":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge, "validation", "request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBFF(t)
			b.start(t, "c1")

			rec := b.do(t, http.MethodPost, "/api/v1/session/switch", "c1", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			got := decode[errorBody](t, rec)
			if got.Kind != tt.wantKind || got.Error != tt.wantMsg {
				t.Fatalf("expected %s %q, got %+v", tt.wantKind, tt.wantMsg, got)
			}
		})
	}
}

func TestSwitchBusyReturnsConflict(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")
	b.api.switchGate = make(chan struct{})
	b.api.switchSeen = make(chan struct{}, 1)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- b.do(t, http.MethodPost, "/api/v1/session/switch", "c1", map[string]string{"tenant_id": "b"})
	}()
	<-b.api.switchSeen

	rec := b.do(t, http.MethodPost, "/api/v1/session/switch", "c1", map[string]string{"tenant_id": "b"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if decode[errorBody](t, rec).Kind != "busy" {
		t.Fatal("expected busy kind")
	}

	close(b.api.switchGate)
	if first := <-done; first.Code != http.StatusOK {
		t.Fatalf("first switch: %d %s", first.Code, first.Body.String())
	}
}

func TestCreateUpdateInvite(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	rec := b.do(t, http.MethodPost, "/api/v1/session/tenants", "c1", tenant.CreateRequest{Name: "Gamma", Slug: "gamma"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if created := decode[tenant.Tenant](t, rec); created.ID != "t-gamma" {
		t.Fatalf("unexpected tenant %+v", created)
	}

	rec = b.do(t, http.MethodPost, "/api/v1/session/tenants", "c1", tenant.CreateRequest{Name: "Bad", Slug: "Not A Slug"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad slug, got %d", rec.Code)
	}

	rec = b.do(t, http.MethodPut, "/api/v1/session/tenant", "c1", map[string]string{"name": "Acme Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if updated := decode[tenant.Tenant](t, rec); updated.Name != "Acme Renamed" {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = b.do(t, http.MethodPost, "/api/v1/session/invitations", "c1", tenant.InviteMemberRequest{Email: "jo@acme.io", Role: tenant.RoleMember})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("invite: %d %s", rec.Code, rec.Body.String())
	}

	view := decode[session.View](t, b.do(t, http.MethodGet, "/api/v1/session", "c1", nil))
	if len(view.UserTenants) != 3 || view.CurrentTenant.Name != "Acme Renamed" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestRefreshSession(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	b.api.mu.Lock()
	b.api.current = "b"
	b.api.mu.Unlock()

	rec := b.do(t, http.MethodPost, "/api/v1/session/refresh", "c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	if decode[session.View](t, rec).CurrentTenantID() != "b" {
		t.Fatal("expected refreshed selection b")
	}
}

func TestListSwitchesLimit(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	rec := b.do(t, http.MethodGet, "/api/v1/session/switches?limit=0", "c1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = b.do(t, http.MethodGet, "/api/v1/session/switches", "c1", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestListSwitchesLimitIsCapped(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	rec := b.do(t, http.MethodGet, "/api/v1/session/switches?limit=100000000", "c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	b.audit.mu.Lock()
	got := b.audit.lastLimit
	b.audit.mu.Unlock()
	if got != 500 {
		t.Fatalf("expected limit capped at 500, got %d", got)
	}

	b.do(t, http.MethodGet, "/api/v1/session/switches?limit=7", "c1", nil)
	b.audit.mu.Lock()
	got = b.audit.lastLimit
	b.audit.mu.Unlock()
	if got != 7 {
		t.Fatalf("expected limit 7, got %d", got)
	}
}

func TestEndSession(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	if rec := b.do(t, http.MethodDelete, "/api/v1/session", "c1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := b.do(t, http.MethodGet, "/api/v1/session", "c1", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after end, got %d", rec.Code)
	}
	if rec := b.do(t, http.MethodDelete, "/api/v1/session", "c1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("ending twice must succeed, got %d", rec.Code)
	}
}

func TestTenantAPIDown(t *testing.T) {
	b := newTestBFF(t)
	b.apiSrv.Close()

	rec := b.do(t, http.MethodPost, "/api/v1/session", "c1", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %s", rec.Code, rec.Body.String())
	}
	if decode[errorBody](t, rec).Kind != "network" {
		t.Fatal("expected network kind")
	}
	if b.sessions.Len() != 1 {
		t.Fatal("session stays registered after a failed refresh")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	b := newTestBFF(t)
	b.start(t, "c1")

	if rec := b.do(t, http.MethodGet, "/api/v1/session", "c2", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("other cookie must not see c1's session, got %d", rec.Code)
	}
}
