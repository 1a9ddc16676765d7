package service

import (
	"context"
	"errors"

	"github.com/Strob0t/tenantdesk/internal/domain"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/port/tenantapi"
	"github.com/Strob0t/tenantdesk/internal/resilience"
)

var (
	// ErrSwitchInProgress rejects a switch issued while another is pending.
	ErrSwitchInProgress = errors.New("tenant switch already in progress")

	// ErrStaleResponse means a response arrived after a newer selection and was discarded.
	ErrStaleResponse = errors.New("stale tenant response discarded")

	// ErrNoSession means no tenant session exists for the principal.
	ErrNoSession = errors.New("no tenant session")
)

// ClassifyError maps err to the kind surfaced on a session snapshot.
// It returns "" for a nil error.
func ClassifyError(err error) session.ErrorKind {
	var (
		netErr *tenantapi.NetworkError
		apiErr *tenantapi.APIError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSwitchInProgress):
		return session.KindBusy
	case errors.Is(err, ErrStaleResponse):
		return session.KindStale
	case errors.Is(err, domain.ErrValidation):
		return session.KindValidation
	case errors.Is(err, context.DeadlineExceeded):
		return session.KindTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		return session.KindUnavailable
	case errors.As(err, &netErr):
		return session.KindNetwork
	case errors.As(err, &apiErr):
		return session.KindApplication
	case errors.Is(err, context.Canceled):
		return session.KindNetwork
	default:
		return session.KindApplication
	}
}

// ErrorMessage returns the text shown to the principal for err.
func ErrorMessage(err error) string {
	var apiErr *tenantapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
