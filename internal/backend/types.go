package backend

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// API is what the metering core needs from the external backend collaborator.
// The backend owns session identity and the authoritative start/stop facts; it
// does not model countdown semantics.
type API interface {
	StartSession(ctx context.Context, req StartSessionRequest) (*StartSessionResponse, error)
	StopSession(ctx context.Context, sessionID uuid.UUID) (*StopSessionResponse, error)
	ActiveSessions(ctx context.Context, scope string) ([]ActiveSession, error)
}

// StartSessionRequest creates a session server-side.
type StartSessionRequest struct {
	ResourceID             uuid.UUID `json:"resource_id"`
	Mode                   string    `json:"mode"`
	PlannedDurationSeconds int64     `json:"planned_duration_seconds,omitempty"`
	Scope                  string    `json:"scope"`
}

// StartSessionResponse carries the server-assigned identity and start time.
type StartSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// StopSessionResponse carries the server's terminal facts for a session.
type StopSessionResponse struct {
	StoppedAt      time.Time       `json:"stopped_at"`
	ElapsedSeconds int64           `json:"elapsed_seconds"`
	FinalCost      decimal.Decimal `json:"final_cost"`
}

// ActiveSession is one entry of the authoritative session list polled by the
// reconciliation loop.
type ActiveSession struct {
	SessionID          uuid.UUID       `json:"session_id"`
	ResourceID         uuid.UUID       `json:"resource_id"`
	StartedAt          time.Time       `json:"started_at"`
	PausedTotalSeconds int64           `json:"paused_total_seconds"`
	RatePerMinute      decimal.Decimal `json:"rate_per_minute"`
}
