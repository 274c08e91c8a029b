package metering

import (
	"context"
	"time"

	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResourceCatalog is the external collaborator that owns rentable resources.
type ResourceCatalog interface {
	GetResource(ctx context.Context, id uuid.UUID) (*models.Resource, error)
}

// StartTimerRequest starts metering a resource.
type StartTimerRequest struct {
	ResourceID             uuid.UUID        `json:"resource_id"`
	Mode                   models.TimerMode `json:"mode"`
	PlannedDurationSeconds int64            `json:"planned_duration_seconds,omitempty"`
}

// SessionView is a read-only snapshot of one session, safe to build on every
// render or tick. Costs are rounded to the currency's minor unit.
type SessionView struct {
	SessionID        uuid.UUID            `json:"session_id"`
	ResourceID       uuid.UUID            `json:"resource_id"`
	Mode             models.TimerMode     `json:"mode"`
	Status           models.SessionStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	ElapsedSeconds   int64                `json:"elapsed_seconds"`
	RemainingSeconds int64                `json:"remaining_seconds,omitempty"`
	AccruedCost      decimal.Decimal      `json:"accrued_cost"`
	Paused           bool                 `json:"paused"`
}

// FinalCost is what StopTimer hands back to the caller.
type FinalCost struct {
	SessionID      uuid.UUID       `json:"session_id"`
	StoppedAt      time.Time       `json:"stopped_at"`
	ElapsedSeconds int64           `json:"elapsed_seconds"`
	Cost           decimal.Decimal `json:"cost"`
}

func viewOf(s *models.TimerSession, now time.Time) SessionView {
	return SessionView{
		SessionID:        s.ID,
		ResourceID:       s.ResourceID,
		Mode:             s.Mode,
		Status:           s.Status,
		StartedAt:        s.StartedAt,
		ElapsedSeconds:   s.ElapsedBillableSeconds(now),
		RemainingSeconds: s.RemainingSeconds,
		AccruedCost:      s.AccruedCost.Round(2),
		Paused:           s.PausedAt != nil,
	}
}
