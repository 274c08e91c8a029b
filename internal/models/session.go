package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TimerMode defines how a session meters time.
type TimerMode string

const (
	// TimerModeChronometer counts elapsed time upward from zero; no planned end.
	TimerModeChronometer TimerMode = "CHRONOMETER"
	// TimerModeCountdown counts a fixed planned duration down to zero, then expires.
	TimerModeCountdown TimerMode = "COUNTDOWN"
)

// SessionStatus defines the lifecycle state of a timer session.
type SessionStatus string

const (
	SessionStatusRunning SessionStatus = "RUNNING"
	SessionStatusExpired SessionStatus = "EXPIRED"
	SessionStatusStopped SessionStatus = "STOPPED"
)

var sixty = decimal.NewFromInt(60)

// TimerSession is a metered rental of a single resource. Cost accrues as
// rate-per-minute times billable seconds, and freezes the instant a countdown
// session expires.
type TimerSession struct {
	ID                     uuid.UUID       `json:"id"`
	ResourceID             uuid.UUID       `json:"resource_id"`
	Mode                   TimerMode       `json:"mode"`
	Status                 SessionStatus   `json:"status"`
	StartedAt              time.Time       `json:"started_at"`
	PausedTotalSeconds     int64           `json:"paused_total_seconds"`
	PausedAt               *time.Time      `json:"paused_at,omitempty"`
	PlannedDurationSeconds int64           `json:"planned_duration_seconds,omitempty"`
	RemainingSeconds       int64           `json:"remaining_seconds,omitempty"`
	RatePerMinute          decimal.Decimal `json:"rate_per_minute"`
	AccruedCost            decimal.Decimal `json:"accrued_cost"`
	AlertFired             bool            `json:"alert_fired"`
	ExpiredAt              *time.Time      `json:"expired_at,omitempty"`
	StoppedAt              *time.Time      `json:"stopped_at,omitempty"`
}

// CostFor returns the cost of billableSeconds at the session rate, never negative.
func (s *TimerSession) CostFor(billableSeconds int64) decimal.Decimal {
	if billableSeconds < 0 {
		billableSeconds = 0
	}
	return decimal.NewFromInt(billableSeconds).Div(sixty).Mul(s.RatePerMinute)
}

// ElapsedBillableSeconds returns the seconds the session has been billing for,
// as of now. Chronometer sessions subtract accumulated (and in-flight) pause
// time; countdown sessions derive it from the consumed planned duration.
func (s *TimerSession) ElapsedBillableSeconds(now time.Time) int64 {
	switch s.Mode {
	case TimerModeCountdown:
		return s.PlannedDurationSeconds - s.RemainingSeconds
	default:
		end := now
		if s.PausedAt != nil {
			end = *s.PausedAt
		}
		if s.StoppedAt != nil {
			end = *s.StoppedAt
		}
		elapsed := int64(end.Sub(s.StartedAt).Seconds()) - s.PausedTotalSeconds
		if elapsed < 0 {
			elapsed = 0
		}
		return elapsed
	}
}

// Tick advances the session against the wall clock. It recomputes elapsed and
// remaining time from StartedAt rather than incrementing counters, so a missed
// tick (process suspend, laptop sleep) is absorbed on the next call.
//
// The returned bool reports whether this tick crossed the Running -> Expired
// boundary; the caller is responsible for alerting and persisting exactly once.
// Ticks on Expired or Stopped sessions are no-ops.
func (s *TimerSession) Tick(now time.Time) bool {
	switch s.Status {
	case SessionStatusStopped, SessionStatusExpired:
		return false
	}

	switch s.Mode {
	case TimerModeCountdown:
		consumed := int64(now.Sub(s.StartedAt).Seconds())
		remaining := s.PlannedDurationSeconds - consumed
		if remaining < 0 {
			remaining = 0
		}
		// remaining is monotonically non-increasing even if the clock or the
		// server-provided start time moves backwards under us.
		if remaining < s.RemainingSeconds {
			s.RemainingSeconds = remaining
		}
		s.AccruedCost = s.CostFor(s.PlannedDurationSeconds - s.RemainingSeconds)
		if s.RemainingSeconds == 0 {
			s.Status = SessionStatusExpired
			s.AccruedCost = s.CostFor(s.PlannedDurationSeconds)
			t := now
			s.ExpiredAt = &t
			return true
		}
		return false
	default:
		s.AccruedCost = s.CostFor(s.ElapsedBillableSeconds(now))
		return false
	}
}

// Pause freezes a running chronometer session's billing clock. Pausing never
// changes Status; countdown sessions cannot pause.
func (s *TimerSession) Pause(now time.Time) bool {
	if s.Mode != TimerModeChronometer || s.Status != SessionStatusRunning || s.PausedAt != nil {
		return false
	}
	t := now
	s.PausedAt = &t
	return true
}

// Resume ends an in-flight pause, folding its length into PausedTotalSeconds.
func (s *TimerSession) Resume(now time.Time) bool {
	if s.PausedAt == nil {
		return false
	}
	s.PausedTotalSeconds += int64(now.Sub(*s.PausedAt).Seconds())
	s.PausedAt = nil
	return true
}

// Stop moves the session to its terminal state. Legal from Running or Expired;
// stopping an already-stopped session is a no-op.
func (s *TimerSession) Stop(now time.Time) bool {
	if s.Status == SessionStatusStopped {
		return false
	}
	if s.PausedAt != nil {
		s.Resume(now)
	}
	if s.Status == SessionStatusRunning {
		// Final catch-up so the billed figure reflects the stop instant.
		s.Tick(now)
	}
	s.Status = SessionStatusStopped
	t := now
	s.StoppedAt = &t
	return true
}

// MarkExpired restores a session straight into the Expired state, pinning
// remaining time at zero and the accrued cost at the full planned duration.
// Used when reloading persisted expirations after a restart.
func (s *TimerSession) MarkExpired(expiredAt time.Time) {
	s.Status = SessionStatusExpired
	s.RemainingSeconds = 0
	s.AccruedCost = s.CostFor(s.PlannedDurationSeconds)
	t := expiredAt
	s.ExpiredAt = &t
}

// Active reports whether the session still occupies its resource: a session
// that is Running or Expired-but-unacknowledged blocks new starts.
func (s *TimerSession) Active() bool {
	return s.Status == SessionStatusRunning || s.Status == SessionStatusExpired
}
