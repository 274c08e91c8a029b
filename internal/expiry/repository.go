package expiry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres-backed expiration store.
//
// Schema:
//
//	CREATE TABLE expired_sessions (
//	    scope                    TEXT        NOT NULL,
//	    session_id               UUID        NOT NULL,
//	    planned_duration_seconds BIGINT      NOT NULL,
//	    expired_at               TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (scope, session_id)
//	);
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record upserts the expiration fact for a session. Re-recording the same
// session overwrites by key, which keeps the write idempotent under duplicate
// tick delivery.
func (r *Repository) Record(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO expired_sessions (scope, session_id, planned_duration_seconds, expired_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, session_id) DO UPDATE
		SET planned_duration_seconds = EXCLUDED.planned_duration_seconds,
		    expired_at               = EXCLUDED.expired_at`
	_, err := r.pool.Exec(ctx, q, rec.Scope, rec.SessionID, rec.PlannedDurationSeconds, rec.ExpiredAt)
	if err != nil {
		return fmt.Errorf("failed to record expired session: %w", err)
	}
	return nil
}

// Remove deletes the expiration fact for a session. Removing an absent key is
// not an error.
func (r *Repository) Remove(ctx context.Context, scope string, sessionID uuid.UUID) error {
	const q = `DELETE FROM expired_sessions WHERE scope = $1 AND session_id = $2`
	if _, err := r.pool.Exec(ctx, q, scope, sessionID); err != nil {
		return fmt.Errorf("failed to remove expired session: %w", err)
	}
	return nil
}

// ListByScope returns every recorded expiration for a scope.
func (r *Repository) ListByScope(ctx context.Context, scope string) ([]Record, error) {
	const q = `
		SELECT scope, session_id, planned_duration_seconds, expired_at
		FROM expired_sessions
		WHERE scope = $1
		ORDER BY expired_at`
	rows, err := r.pool.Query(ctx, q, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Scope, &rec.SessionID, &rec.PlannedDurationSeconds, &rec.ExpiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan expired session: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired sessions: %w", err)
	}
	return recs, nil
}
