package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Strob0t/tenantdesk/internal/domain"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/service"
)

// kindNoSession marks errors for requests without a live session.
const kindNoSession = "no_session"

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", string(session.KindValidation))
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body", string(session.KindValidation))
		}
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// statusFor maps a session error kind to its HTTP status.
func statusFor(kind session.ErrorKind) int {
	switch kind {
	case session.KindValidation:
		return http.StatusBadRequest
	case session.KindBusy, session.KindStale:
		return http.StatusConflict
	case session.KindApplication:
		return http.StatusUnprocessableEntity
	case session.KindNetwork:
		return http.StatusBadGateway
	case session.KindTimeout:
		return http.StatusGatewayTimeout
	case session.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeSessionError classifies err and writes it as {error, kind}.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrNoSession) {
		writeError(w, http.StatusUnauthorized, "no tenant session, start one first", kindNoSession)
		return
	}

	kind := service.ClassifyError(err)
	status := statusFor(kind)
	msg := service.ErrorMessage(err)
	if kind == session.KindValidation {
		if i := strings.Index(msg, domain.ErrValidation.Error()+": "); i >= 0 {
			msg = msg[i+len(domain.ErrValidation.Error())+2:]
		}
	}

	if status >= http.StatusInternalServerError {
		slog.WarnContext(r.Context(), "tenant api request failed", "kind", kind, "status", status, "error", err)
	}
	writeError(w, status, msg, string(kind))
}
