package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
	"github.com/Strob0t/tenantdesk/internal/middleware"
	"github.com/Strob0t/tenantdesk/internal/port/database"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
	"github.com/Strob0t/tenantdesk/internal/service"
)

// Handlers serves the session API on top of a SessionRegistry.
type Handlers struct {
	Sessions   *service.SessionRegistry
	Audit      database.SwitchAuditStore
	Publisher  messagequeue.Publisher
	BodyLimit  int64
	AuditLimit int
}

// auditLimitFactor bounds ?limit= to this multiple of the default page size.
const auditLimitFactor = 10

type switchRequest struct {
	TenantID string `json:"tenant_id"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	NATS     bool   `json:"nats_connected"`
}

// cookie returns the caller's session cookie or writes 401.
func cookie(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, ok := middleware.SessionCookie(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session cookie required", kindNoSession)
		return "", false
	}
	return c, true
}

// manager returns the caller's live session or writes an error.
func (h *Handlers) manager(w http.ResponseWriter, r *http.Request) (*service.SessionManager, bool) {
	c, ok := cookie(w, r)
	if !ok {
		return nil, false
	}
	m, err := h.Sessions.Get(c)
	if err != nil {
		writeSessionError(w, r, err)
		return nil, false
	}
	return m, true
}

// StartSession handles POST /api/v1/session.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	c, ok := cookie(w, r)
	if !ok {
		return
	}
	m, err := h.Sessions.OnSessionStart(r.Context(), c)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View())
}

// EndSession handles DELETE /api/v1/session. Ending an unknown session succeeds.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	c, ok := cookie(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.OnSessionEnd(r.Context(), c); err != nil && !errors.Is(err, service.ErrNoSession) {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /api/v1/session.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.View())
}

// RefreshSession handles POST /api/v1/session/refresh.
func (h *Handlers) RefreshSession(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	err := m.RefreshTenants(r.Context())
	if errCurrent := m.RefreshCurrentTenant(r.Context()); err == nil {
		err = errCurrent
	}
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View())
}

// SwitchTenant handles POST /api/v1/session/switch.
func (h *Handlers) SwitchTenant(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[switchRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	if err := m.SwitchTenant(r.Context(), req.TenantID); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View())
}

// CreateTenant handles POST /api/v1/session/tenants.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[tenant.CreateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	t, err := m.CreateTenant(r.Context(), req)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTenant handles PUT /api/v1/session/tenant.
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[tenant.UpdateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	t, err := m.UpdateTenant(r.Context(), req)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// InviteMember handles POST /api/v1/session/invitations.
func (h *Handlers) InviteMember(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[tenant.InviteMemberRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	if err := m.InviteMember(r.Context(), req); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSwitches handles GET /api/v1/session/switches?limit=N.
func (h *Handlers) ListSwitches(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	limit := h.AuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", string(session.KindValidation))
			return
		}
		limit = min(n, h.AuditLimit*auditLimitFactor)
	}
	records, err := h.Audit.ListSwitches(r.Context(), m.Principal(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list switches failed", "")
		return
	}
	if records == nil {
		records = []session.SwitchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: h.Sessions.Len(),
		NATS:     h.Publisher != nil && h.Publisher.IsConnected(),
	})
}
