// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/tenantdesk/internal/domain/session"
)

// SwitchAuditStore records tenant switch attempts.
type SwitchAuditStore interface {
	RecordSwitch(ctx context.Context, rec *session.SwitchRecord) error
	// ListSwitches returns the newest records for principal, newest first.
	ListSwitches(ctx context.Context, principal string, limit int) ([]session.SwitchRecord, error)
}

// NopAuditStore discards records. Used when no database is configured.
type NopAuditStore struct{}

func (NopAuditStore) RecordSwitch(context.Context, *session.SwitchRecord) error { return nil }

func (NopAuditStore) ListSwitches(context.Context, string, int) ([]session.SwitchRecord, error) {
	return []session.SwitchRecord{}, nil
}
