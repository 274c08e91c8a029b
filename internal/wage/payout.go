package wage

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeOverride is returned for a manual salary override below zero.
var ErrNegativeOverride = errors.New("override must not be negative")

// PayoutInput describes one employee's pay period. Override, when non-nil,
// replaces the computed wage entirely -- including a legitimate zero salary,
// which is why this is a pointer and not a "zero means unset" sentinel.
type PayoutInput struct {
	Revenue  decimal.Decimal  `json:"revenue"`
	Rate     decimal.Decimal  `json:"rate"`
	Cap      decimal.Decimal  `json:"cap"`
	Override *decimal.Decimal `json:"override,omitempty"`
	Bonuses  decimal.Decimal  `json:"bonuses"`
}

// Payout is the composed pay figure for a period.
type Payout struct {
	Base       Result          `json:"base"`
	Overridden bool            `json:"overridden"`
	Total      decimal.Decimal `json:"total"`
}

// ComputePayout layers bonuses on top of either a manual override or the
// capped computed wage. When the override applies, the cap does not: the
// manual figure is taken as entered and nothing is withheld.
func ComputePayout(in PayoutInput) (Payout, error) {
	base, err := Compute(in.Revenue, in.Rate, in.Cap)
	if err != nil {
		return Payout{}, err
	}

	out := Payout{Base: base}
	pay := base.FinalWage
	if in.Override != nil {
		if in.Override.IsNegative() {
			return Payout{}, ErrNegativeOverride
		}
		pay = in.Override.Round(2)
		out.Overridden = true
		out.Base.Capped = false
		out.Base.Withheld = decimal.Zero
	}

	out.Total = pay.Add(in.Bonuses).Round(2)
	return out, nil
}
