package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event payload types shared between the metering core, the alert publisher
// and the gateway.

const (
	TypeSessionStarted = "SessionStarted"
	TypeSessionExpired = "SessionExpired"
	TypeSessionStopped = "SessionStopped"
)

// SessionStartedPayload is the payload for a SessionStarted event.
type SessionStartedPayload struct {
	SessionID              string    `json:"session_id"`
	ResourceID             string    `json:"resource_id"`
	Mode                   string    `json:"mode"`
	StartedAt              time.Time `json:"started_at"`
	PlannedDurationSeconds int64     `json:"planned_duration_seconds,omitempty"`
}

// SessionExpiredPayload is the payload for a SessionExpired event. FinalCost
// is the frozen cost for the full planned duration.
type SessionExpiredPayload struct {
	SessionID              string          `json:"session_id"`
	ResourceID             string          `json:"resource_id"`
	Scope                  string          `json:"scope"`
	PlannedDurationSeconds int64           `json:"planned_duration_seconds"`
	ExpiredAt              time.Time       `json:"expired_at"`
	FinalCost              decimal.Decimal `json:"final_cost"`
}

// SessionStoppedPayload is the payload for a SessionStopped event.
type SessionStoppedPayload struct {
	SessionID      string          `json:"session_id"`
	ResourceID     string          `json:"resource_id"`
	StoppedAt      time.Time       `json:"stopped_at"`
	ElapsedSeconds int64           `json:"elapsed_seconds"`
	FinalCost      decimal.Decimal `json:"final_cost"`
}
