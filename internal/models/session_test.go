package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newCountdownSession(rate string, plannedSec int64, startedAt time.Time) *TimerSession {
	return &TimerSession{
		ID:                     uuid.New(),
		ResourceID:             uuid.New(),
		Mode:                   TimerModeCountdown,
		Status:                 SessionStatusRunning,
		StartedAt:              startedAt,
		PlannedDurationSeconds: plannedSec,
		RemainingSeconds:       plannedSec,
		RatePerMinute:          decimal.RequireFromString(rate),
	}
}

func newChronometerSession(rate string, startedAt time.Time) *TimerSession {
	return &TimerSession{
		ID:            uuid.New(),
		ResourceID:    uuid.New(),
		Mode:          TimerModeChronometer,
		Status:        SessionStatusRunning,
		StartedAt:     startedAt,
		RatePerMinute: decimal.RequireFromString(rate),
	}
}

func TestCountdownTickToExpiration(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("2.00", 300, start)

	// 300 one-second ticks on a 5-minute countdown.
	transitions := 0
	for i := 1; i <= 300; i++ {
		if s.Tick(start.Add(time.Duration(i) * time.Second)) {
			transitions++
		}
	}

	if s.Status != SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", s.Status)
	}
	if s.RemainingSeconds != 0 {
		t.Fatalf("expected remaining 0, got %d", s.RemainingSeconds)
	}
	if transitions != 1 {
		t.Fatalf("expected exactly one transition, got %d", transitions)
	}
	// 5 minutes at 2.00/min.
	if want := decimal.RequireFromString("10"); !s.AccruedCost.Equal(want) {
		t.Fatalf("expected accrued cost %s, got %s", want, s.AccruedCost)
	}
}

func TestExpiredSessionFreezesCost(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("2.00", 300, start)
	for i := 1; i <= 300; i++ {
		s.Tick(start.Add(time.Duration(i) * time.Second))
	}
	frozen := s.AccruedCost

	// Ten extra ticks while expired must change nothing.
	for i := 301; i <= 310; i++ {
		if s.Tick(start.Add(time.Duration(i) * time.Second)) {
			t.Fatal("expired session must not transition again")
		}
	}
	if !s.AccruedCost.Equal(frozen) {
		t.Fatalf("cost moved after expiration: %s -> %s", frozen, s.AccruedCost)
	}
	if s.RemainingSeconds != 0 {
		t.Fatalf("remaining moved after expiration: %d", s.RemainingSeconds)
	}
}

func TestCountdownCatchUpAfterMissedTicks(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("1.00", 120, start)

	// A single late tick (process suspend) must land on the same state as
	// 120 individual ticks would have.
	if !s.Tick(start.Add(10 * time.Minute)) {
		t.Fatal("expected expiration on catch-up tick")
	}
	if s.RemainingSeconds != 0 {
		t.Fatalf("expected remaining 0, got %d", s.RemainingSeconds)
	}
	if want := decimal.RequireFromString("2"); !s.AccruedCost.Equal(want) {
		t.Fatalf("expected cost %s, got %s", want, s.AccruedCost)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("1.00", 5, start)
	for i := 1; i <= 20; i++ {
		s.Tick(start.Add(time.Duration(i) * time.Second))
		if s.RemainingSeconds < 0 {
			t.Fatalf("remaining went negative at tick %d: %d", i, s.RemainingSeconds)
		}
	}
}

func TestChronometerAccrual(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newChronometerSession("3.00", start)

	s.Tick(start.Add(2 * time.Minute))
	if want := decimal.RequireFromString("6"); !s.AccruedCost.Equal(want) {
		t.Fatalf("expected cost %s, got %s", want, s.AccruedCost)
	}
	if s.Status != SessionStatusRunning {
		t.Fatalf("chronometer must never expire, got %s", s.Status)
	}
}

func TestChronometerPauseExcludesPausedTime(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newChronometerSession("1.00", start)

	if !s.Pause(start.Add(60 * time.Second)) {
		t.Fatal("pause failed")
	}
	if s.Status != SessionStatusRunning {
		t.Fatal("pause must not change status")
	}

	// Billing clock is frozen while paused.
	s.Tick(start.Add(3 * time.Minute))
	if got := s.ElapsedBillableSeconds(start.Add(3 * time.Minute)); got != 60 {
		t.Fatalf("expected 60 billable seconds while paused, got %d", got)
	}

	if !s.Resume(start.Add(4 * time.Minute)) {
		t.Fatal("resume failed")
	}
	// 3 minutes paused, so at minute 5 only 2 minutes billed.
	s.Tick(start.Add(5 * time.Minute))
	if got := s.ElapsedBillableSeconds(start.Add(5 * time.Minute)); got != 120 {
		t.Fatalf("expected 120 billable seconds after resume, got %d", got)
	}
}

func TestCountdownCannotPause(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("1.00", 60, start)
	if s.Pause(start.Add(time.Second)) {
		t.Fatal("countdown session must not pause")
	}
}

func TestStopIsTerminal(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newChronometerSession("1.00", start)

	if !s.Stop(start.Add(90 * time.Second)) {
		t.Fatal("stop failed")
	}
	if s.Status != SessionStatusStopped {
		t.Fatalf("expected STOPPED, got %s", s.Status)
	}
	frozen := s.AccruedCost

	if s.Stop(start.Add(5 * time.Minute)) {
		t.Fatal("second stop must be a no-op")
	}
	if s.Tick(start.Add(10 * time.Minute)) {
		t.Fatal("tick after stop must be a no-op")
	}
	if !s.AccruedCost.Equal(frozen) {
		t.Fatalf("cost moved after stop: %s -> %s", frozen, s.AccruedCost)
	}
}

func TestStopFromExpiredKeepsFrozenCost(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("2.00", 60, start)
	s.Tick(start.Add(time.Minute))
	if s.Status != SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", s.Status)
	}
	frozen := s.AccruedCost

	s.Stop(start.Add(time.Hour))
	if !s.AccruedCost.Equal(frozen) {
		t.Fatalf("stop from expired changed cost: %s -> %s", frozen, s.AccruedCost)
	}
}

func TestMarkExpiredRestoresFrozenState(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newCountdownSession("2.00", 300, start)
	s.MarkExpired(start.Add(300 * time.Second))

	if s.Status != SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", s.Status)
	}
	if s.RemainingSeconds != 0 {
		t.Fatalf("expected remaining 0, got %d", s.RemainingSeconds)
	}
	if want := decimal.RequireFromString("10"); !s.AccruedCost.Equal(want) {
		t.Fatalf("expected cost %s, got %s", want, s.AccruedCost)
	}
	if s.Tick(start.Add(time.Hour)) {
		t.Fatal("restored expired session must not transition again")
	}
}
