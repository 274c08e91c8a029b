package metering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calderaops/meterbill/internal/backend"
	"github.com/calderaops/meterbill/internal/events"
	"github.com/calderaops/meterbill/internal/expiry"
	"github.com/calderaops/meterbill/internal/ledger"
	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// fakeBackend is an in-memory stand-in for the external session backend.
type fakeBackend struct {
	mu       sync.Mutex
	now      func() time.Time
	active   []backend.ActiveSession
	startErr error
	stopErr  error
	stops    []uuid.UUID
}

func (f *fakeBackend) StartSession(_ context.Context, req backend.StartSessionRequest) (*backend.StartSessionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &backend.StartSessionResponse{SessionID: uuid.New(), StartedAt: f.now()}, nil
}

func (f *fakeBackend) StopSession(_ context.Context, sessionID uuid.UUID) (*backend.StopSessionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	f.stops = append(f.stops, sessionID)
	return &backend.StopSessionResponse{
		StoppedAt:      f.now(),
		ElapsedSeconds: 90,
		FinalCost:      decimal.RequireFromString("4.50"),
	}, nil
}

func (f *fakeBackend) ActiveSessions(_ context.Context, _ string) ([]backend.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

// countingNotifier records every expiration alert it receives.
type countingNotifier struct {
	mu       sync.Mutex
	payloads []events.SessionExpiredPayload
	started  int
	stopped  int
}

func (n *countingNotifier) SessionStarted(_ context.Context, _ events.SessionStartedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
	return nil
}

func (n *countingNotifier) SessionExpired(_ context.Context, p events.SessionExpiredPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	return nil
}

func (n *countingNotifier) SessionStopped(_ context.Context, _ events.SessionStoppedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped++
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payloads)
}

// recordingLedger captures charges in memory.
type recordingLedger struct {
	mu      sync.Mutex
	charges []ledger.Charge
}

func (l *recordingLedger) RecordCharge(_ context.Context, c ledger.Charge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charges = append(l.charges, c)
	return nil
}

func (l *recordingLedger) TotalForScope(_ context.Context, _ string, _, _ time.Time) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, c := range l.charges {
		total = total.Add(c.FinalCost)
	}
	return total, nil
}

type appFixture struct {
	app      *App
	clock    *clockwork.FakeClock
	backend  *fakeBackend
	notifier *countingNotifier
	expiries *expiry.MemoryStore
	ledger   *recordingLedger
	resource models.Resource
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	resource := models.Resource{
		ID:            uuid.New(),
		Name:          "van-1",
		RatePerMinute: decimal.RequireFromString("2.00"),
	}

	fb := &fakeBackend{now: clock.Now}
	fx := &appFixture{
		clock:    clock,
		backend:  fb,
		notifier: &countingNotifier{},
		expiries: expiry.NewMemoryStore(),
		ledger:   &recordingLedger{},
		resource: resource,
	}
	store := NewSessionStore("scope-a")
	catalog := NewStaticCatalog([]models.Resource{resource})
	fx.app = NewApp(store, catalog, fb, fx.expiries, fx.notifier, fx.ledger, clock)
	return fx
}

// tick advances the fake clock by one second and delivers a tick.
func (fx *appFixture) tick(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		fx.clock.Advance(time.Second)
		fx.app.TickAll(ctx)
	}
}

func TestStartTimerCountdownExpires(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID:             fx.resource.ID,
		Mode:                   models.TimerModeCountdown,
		PlannedDurationSeconds: 300,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	// Five minutes of one-second ticks.
	fx.tick(ctx, 300)

	view, err := fx.app.GetSessionView(sessionID)
	if err != nil {
		t.Fatalf("GetSessionView failed: %v", err)
	}
	if view.Status != models.SessionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", view.Status)
	}
	if view.RemainingSeconds != 0 {
		t.Fatalf("expected remaining 0, got %d", view.RemainingSeconds)
	}
	if want := decimal.RequireFromString("10.00"); !view.AccruedCost.Equal(want) {
		t.Fatalf("expected cost %s, got %s", want, view.AccruedCost)
	}

	// Extra ticks change nothing.
	fx.tick(ctx, 10)
	after, _ := fx.app.GetSessionView(sessionID)
	if !after.AccruedCost.Equal(view.AccruedCost) {
		t.Fatalf("cost moved after expiration: %s -> %s", view.AccruedCost, after.AccruedCost)
	}
}

func TestAlertFiresExactlyOnce(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID:             fx.resource.ID,
		Mode:                   models.TimerModeCountdown,
		PlannedDurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	fx.tick(ctx, 20)

	if got := fx.notifier.count(); got != 1 {
		t.Fatalf("expected exactly one alert, got %d", got)
	}
	if fx.notifier.payloads[0].SessionID != sessionID.String() {
		t.Fatalf("alert for wrong session: %s", fx.notifier.payloads[0].SessionID)
	}
}

func TestExpirationIsPersistedOnTransition(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID:             fx.resource.ID,
		Mode:                   models.TimerModeCountdown,
		PlannedDurationSeconds: 10,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	fx.tick(ctx, 10)

	recs, err := fx.expiries.ListByScope(ctx, "scope-a")
	if err != nil {
		t.Fatalf("ListByScope failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one expiration record, got %d", len(recs))
	}
	if recs[0].SessionID != sessionID {
		t.Fatalf("record for wrong session: %s", recs[0].SessionID)
	}
	if recs[0].PlannedDurationSeconds != 10 {
		t.Fatalf("expected planned duration 10, got %d", recs[0].PlannedDurationSeconds)
	}
}

func TestStartTimerBusyResource(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	if _, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	}); err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	_, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	})
	if !errors.Is(err, ErrResourceBusy) {
		t.Fatalf("expected ErrResourceBusy, got %v", err)
	}
	if fx.app.Store().Len() != 1 {
		t.Fatalf("busy start created a second session")
	}
}

func TestStartTimerBusyWhileExpired(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID:             fx.resource.ID,
		Mode:                   models.TimerModeCountdown,
		PlannedDurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}
	fx.tick(ctx, 5)

	if _, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	}); !errors.Is(err, ErrResourceBusy) {
		t.Fatalf("expected ErrResourceBusy on expired resource, got %v", err)
	}

	// Stopping the expired session frees the resource.
	if _, err := fx.app.StopTimer(ctx, sessionID); err != nil {
		t.Fatalf("StopTimer failed: %v", err)
	}
	if _, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	}); err != nil {
		t.Fatalf("start after stop failed: %v", err)
	}
}

func TestStartTimerInvalidDuration(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	for _, dur := range []int64{0, -60} {
		_, err := fx.app.StartTimer(ctx, StartTimerRequest{
			ResourceID:             fx.resource.ID,
			Mode:                   models.TimerModeCountdown,
			PlannedDurationSeconds: dur,
		})
		if !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("duration %d: expected ErrInvalidDuration, got %v", dur, err)
		}
	}
	if fx.app.Store().Len() != 0 {
		t.Fatal("invalid start created a session")
	}
}

func TestStopTimerUnknownSession(t *testing.T) {
	fx := newAppFixture(t)
	if _, err := fx.app.StopTimer(context.Background(), uuid.New()); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestStopTimerRecordsChargeAndClearsExpiration(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID:             fx.resource.ID,
		Mode:                   models.TimerModeCountdown,
		PlannedDurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}
	fx.tick(ctx, 5)

	final, err := fx.app.StopTimer(ctx, sessionID)
	if err != nil {
		t.Fatalf("StopTimer failed: %v", err)
	}
	// The server's terminal figures win over the local prediction.
	if want := decimal.RequireFromString("4.50"); !final.Cost.Equal(want) {
		t.Fatalf("expected server cost %s, got %s", want, final.Cost)
	}

	if len(fx.ledger.charges) != 1 {
		t.Fatalf("expected one ledger charge, got %d", len(fx.ledger.charges))
	}
	recs, _ := fx.expiries.ListByScope(ctx, "scope-a")
	if len(recs) != 0 {
		t.Fatalf("expiration record not cleared on stop, %d left", len(recs))
	}
	if fx.notifier.started != 1 || fx.notifier.stopped != 1 {
		t.Fatalf("expected one start and one stop event, got %d/%d", fx.notifier.started, fx.notifier.stopped)
	}
	if _, err := fx.app.GetSessionView(sessionID); !errors.Is(err, ErrUnknownSession) {
		t.Fatal("session still tracked after stop")
	}
}

func TestStopTimerBackendFailureLeavesSession(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	fx.backend.stopErr = errors.New("network down")
	if _, err := fx.app.StopTimer(ctx, sessionID); err == nil {
		t.Fatal("expected stop to fail")
	}

	// The session survives for a retry.
	view, err := fx.app.GetSessionView(sessionID)
	if err != nil {
		t.Fatalf("session gone after failed stop: %v", err)
	}
	if view.Status != models.SessionStatusRunning {
		t.Fatalf("expected RUNNING after failed stop, got %s", view.Status)
	}

	fx.backend.stopErr = nil
	if _, err := fx.app.StopTimer(ctx, sessionID); err != nil {
		t.Fatalf("retry stop failed: %v", err)
	}
}

func TestChronometerViewAccrues(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	fx.tick(ctx, 90)

	view, _ := fx.app.GetSessionView(sessionID)
	if view.ElapsedSeconds != 90 {
		t.Fatalf("expected 90 elapsed seconds, got %d", view.ElapsedSeconds)
	}
	// 1.5 minutes at 2.00/min.
	if want := decimal.RequireFromString("3.00"); !view.AccruedCost.Equal(want) {
		t.Fatalf("expected cost %s, got %s", want, view.AccruedCost)
	}
}

func TestPauseResumeThroughApp(t *testing.T) {
	fx := newAppFixture(t)
	ctx := context.Background()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID: fx.resource.ID,
		Mode:       models.TimerModeChronometer,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	fx.tick(ctx, 60)
	if err := fx.app.PauseTimer(ctx, sessionID); err != nil {
		t.Fatalf("PauseTimer failed: %v", err)
	}
	fx.tick(ctx, 60)

	view, _ := fx.app.GetSessionView(sessionID)
	if !view.Paused {
		t.Fatal("expected paused view")
	}
	if view.ElapsedSeconds != 60 {
		t.Fatalf("expected billable clock frozen at 60s, got %d", view.ElapsedSeconds)
	}

	if err := fx.app.ResumeTimer(ctx, sessionID); err != nil {
		t.Fatalf("ResumeTimer failed: %v", err)
	}
	fx.tick(ctx, 30)

	view, _ = fx.app.GetSessionView(sessionID)
	if view.ElapsedSeconds != 90 {
		t.Fatalf("expected 90 billable seconds, got %d", view.ElapsedSeconds)
	}
}

func TestRunTickerDrivesSessions(t *testing.T) {
	fx := newAppFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID, err := fx.app.StartTimer(ctx, StartTimerRequest{
		ResourceID:             fx.resource.ID,
		Mode:                   models.TimerModeCountdown,
		PlannedDurationSeconds: 3,
	})
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fx.app.RunTicker(ctx, time.Second)
	}()

	// Wait for the ticker to be registered with the fake clock, then walk
	// it past the expiration boundary.
	fx.clock.BlockUntil(1)
	for i := 0; i < 3; i++ {
		fx.clock.Advance(time.Second)
	}

	deadline := time.After(2 * time.Second)
	for {
		view, err := fx.app.GetSessionView(sessionID)
		if err != nil {
			t.Fatalf("GetSessionView failed: %v", err)
		}
		if view.Status == models.SessionStatusExpired {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session never expired under the ticker")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
