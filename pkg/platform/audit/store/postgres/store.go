// Package postgres persists audit events in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "agora/pkg/platform/audit"
)

// Store implements audit.Store on an audit_events table. It uses
// database/sql with the lib/pq driver; audit writes are simple single-row
// inserts and don't need the pgx pool the hot path uses.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one audit event. Duplicate event ids are ignored so a
// replayed event never fails the worker.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, action, user_id, username, provider,
			device, client_ip, request_id, reason, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	var userID *int64
	if event.UserID != 0 {
		userID = &event.UserID
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		userID,
		event.Username,
		event.Provider,
		event.Device,
		event.ClientIP,
		event.RequestID,
		event.Reason,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
