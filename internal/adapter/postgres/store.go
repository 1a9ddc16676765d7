package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/port/database"
)

const maxSwitchListLimit = 500

var _ database.SwitchAuditStore = (*Store)(nil)

// Store implements database.SwitchAuditStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) RecordSwitch(ctx context.Context, rec *session.SwitchRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_switch_audit (id, principal, from_tenant_id, to_tenant_id, outcome, error, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Principal, rec.FromTenantID, rec.ToTenantID, string(rec.Outcome), rec.Error,
		rec.Duration.Milliseconds(), createdAt)
	if err != nil {
		return fmt.Errorf("record switch: %w", err)
	}
	return nil
}

// ListSwitches returns principal's most recent audit entries, newest first.
func (s *Store) ListSwitches(ctx context.Context, principal string, limit int) ([]session.SwitchRecord, error) {
	if limit <= 0 || limit > maxSwitchListLimit {
		limit = maxSwitchListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, principal, from_tenant_id, to_tenant_id, outcome, error, duration_ms, created_at
		 FROM tenant_switch_audit WHERE principal = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, principal, limit)
	if err != nil {
		return nil, fmt.Errorf("list switches: %w", err)
	}
	defer rows.Close()

	records := make([]session.SwitchRecord, 0, limit)
	for rows.Next() {
		var (
			rec        session.SwitchRecord
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.Principal, &rec.FromTenantID, &rec.ToTenantID,
			&outcome, &rec.Error, &durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan switch: %w", err)
		}
		rec.Outcome = session.SwitchOutcome(outcome)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list switches: %w", err)
	}
	return records, nil
}
