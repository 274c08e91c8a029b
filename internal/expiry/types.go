package expiry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is the durable fact that a countdown session crossed into Expired.
// It is written the instant the transition happens and removed exactly on
// stop, so a restart can never resurrect an expired session as still counting.
type Record struct {
	Scope                  string    `json:"scope"`
	SessionID              uuid.UUID `json:"session_id"`
	PlannedDurationSeconds int64     `json:"planned_duration_seconds"`
	ExpiredAt              time.Time `json:"expired_at"`
}

// Store defines what the metering core needs from expiration persistence.
// Keys are unique per (scope, session), so concurrent reads alongside writes
// are safe.
type Store interface {
	Record(ctx context.Context, rec Record) error
	Remove(ctx context.Context, scope string, sessionID uuid.UUID) error
	ListByScope(ctx context.Context, scope string) ([]Record, error)
}
