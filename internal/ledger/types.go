package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Charge is the final billed figure for one stopped session. Written exactly
// once, at stop time, with the cost rounded to the currency's minor unit.
type Charge struct {
	SessionID      uuid.UUID       `json:"session_id"`
	ResourceID     uuid.UUID       `json:"resource_id"`
	Scope          string          `json:"scope"`
	Mode           string          `json:"mode"`
	StartedAt      time.Time       `json:"started_at"`
	StoppedAt      time.Time       `json:"stopped_at"`
	ExpiredAt      *time.Time      `json:"expired_at,omitempty"`
	ElapsedSeconds int64           `json:"elapsed_seconds"`
	FinalCost      decimal.Decimal `json:"final_cost"`
}

// Ledger defines what the metering core needs from the billing ledger.
type Ledger interface {
	RecordCharge(ctx context.Context, charge Charge) error
	TotalForScope(ctx context.Context, scope string, from, to time.Time) (decimal.Decimal, error)
}
