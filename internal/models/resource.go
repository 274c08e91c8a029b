package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Resource represents a rentable resource (e.g. a vehicle). The catalog owns
// these; the metering core only ever reads them.
type Resource struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	RatePerMinute decimal.Decimal `json:"rate_per_minute"`
}
