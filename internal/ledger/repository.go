package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calderaops/meterbill/internal/sqlutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"
)

// Repository is the Postgres-backed billing ledger.
//
// Schema:
//
//	CREATE TABLE session_charges (
//	    session_id      UUID        PRIMARY KEY,
//	    resource_id     UUID        NOT NULL,
//	    scope           TEXT        NOT NULL,
//	    mode            TEXT        NOT NULL,
//	    started_at      TIMESTAMPTZ NOT NULL,
//	    stopped_at      TIMESTAMPTZ NOT NULL,
//	    expired_at      TIMESTAMPTZ,
//	    elapsed_seconds BIGINT      NOT NULL,
//	    final_cost      NUMERIC(12,2) NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to Postgres through the pq driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}
	return db, nil
}

// RecordCharge persists the final charge for a stopped session. The session id
// is the primary key, so a replayed stop cannot double-bill.
func (r *Repository) RecordCharge(ctx context.Context, charge Charge) error {
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO session_charges
				(session_id, resource_id, scope, mode, started_at, stopped_at, expired_at, elapsed_seconds, final_cost)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (session_id) DO NOTHING`
		_, err := tx.ExecContext(ctx, q,
			charge.SessionID,
			charge.ResourceID,
			charge.Scope,
			charge.Mode,
			charge.StartedAt,
			charge.StoppedAt,
			sqlutil.ToSqlTime(charge.ExpiredAt),
			charge.ElapsedSeconds,
			charge.FinalCost.StringFixed(2),
		)
		if err != nil {
			return fmt.Errorf("failed to record session charge: %w", err)
		}
		return nil
	})
}

// GetCharge returns the recorded charge for a session.
func (r *Repository) GetCharge(ctx context.Context, sessionID uuid.UUID) (*Charge, error) {
	const q = `
		SELECT session_id, resource_id, scope, mode, started_at, stopped_at, expired_at, elapsed_seconds, final_cost
		FROM session_charges
		WHERE session_id = $1`

	var charge Charge
	var expiredAt sql.NullTime
	var cost string
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(
		&charge.SessionID,
		&charge.ResourceID,
		&charge.Scope,
		&charge.Mode,
		&charge.StartedAt,
		&charge.StoppedAt,
		&expiredAt,
		&charge.ElapsedSeconds,
		&cost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get session charge: %w", err)
	}
	charge.ExpiredAt = sqlutil.FromSqlTime(expiredAt)
	charge.FinalCost, err = decimal.NewFromString(cost)
	if err != nil {
		return nil, fmt.Errorf("failed to parse final cost: %w", err)
	}
	return &charge, nil
}

// TotalForScope sums the charges for a scope over a billing period. The sum
// feeds the wage calculator as revenue, with no rounding beyond the per-charge
// minor-unit rounding already applied at stop time.
func (r *Repository) TotalForScope(ctx context.Context, scope string, from, to time.Time) (decimal.Decimal, error) {
	const q = `
		SELECT COALESCE(SUM(final_cost), 0)
		FROM session_charges
		WHERE scope = $1 AND stopped_at >= $2 AND stopped_at < $3`

	var total string
	if err := r.db.QueryRowContext(ctx, q, scope, from, to).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to total session charges: %w", err)
	}
	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse charge total: %w", err)
	}
	return sum, nil
}
