package wage

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeRevenue is returned for revenue below zero.
	ErrNegativeRevenue = errors.New("revenue must not be negative")
	// ErrInvalidRate is returned for a rate outside [0, 1].
	ErrInvalidRate = errors.New("rate must be a fraction between 0 and 1")
	// ErrNegativeCap is returned for a cap below zero.
	ErrNegativeCap = errors.New("cap must not be negative")
)

var one = decimal.NewFromInt(1)

// Result is the outcome of a capped wage computation, rounded to the
// currency's minor unit.
type Result struct {
	FinalWage decimal.Decimal `json:"final_wage"`
	Capped    bool            `json:"capped"`
	Withheld  decimal.Decimal `json:"withheld"`
}

// Compute converts a revenue figure into a bounded wage:
//
//	rawWage  = revenue * rate
//	final    = cap > 0 ? min(rawWage, cap) : rawWage
//	withheld = rawWage - final
//
// A zero cap means uncapped. Revenue may be the sum of session charges for a
// billing period; no rounding happens beyond the final minor-unit rounding.
func Compute(revenue, rate, cap decimal.Decimal) (Result, error) {
	if revenue.IsNegative() {
		return Result{}, ErrNegativeRevenue
	}
	if rate.IsNegative() || rate.GreaterThan(one) {
		return Result{}, ErrInvalidRate
	}
	if cap.IsNegative() {
		return Result{}, ErrNegativeCap
	}

	raw := revenue.Mul(rate)
	final := raw
	if cap.IsPositive() && raw.GreaterThan(cap) {
		final = cap
	}
	withheld := raw.Sub(final)

	return Result{
		FinalWage: final.Round(2),
		Capped:    withheld.IsPositive(),
		Withheld:  withheld.Round(2),
	}, nil
}
