package metering

import (
	"context"
	"fmt"

	"github.com/calderaops/meterbill/internal/alert"
	"github.com/calderaops/meterbill/internal/backend"
	"github.com/calderaops/meterbill/internal/events"
	"github.com/calderaops/meterbill/internal/expiry"
	"github.com/calderaops/meterbill/internal/ledger"
	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// App is the metering core: it owns the session store and drives every
// state transition. All caller-facing operations return typed errors from
// errors.go; nothing here panics or terminates the process.
type App struct {
	scope    string
	store    *SessionStore
	catalog  ResourceCatalog
	backend  backend.API
	expiries expiry.Store
	notifier alert.Notifier
	ledger   ledger.Ledger
	clock    clockwork.Clock
}

// NewApp wires the metering core. ledger may be nil when no billing database
// is configured (development); everything else is required.
func NewApp(store *SessionStore, catalog ResourceCatalog, api backend.API, expiries expiry.Store, notifier alert.Notifier, ldg ledger.Ledger, clock clockwork.Clock) *App {
	return &App{
		scope:    store.Scope(),
		store:    store,
		catalog:  catalog,
		backend:  api,
		expiries: expiries,
		notifier: notifier,
		ledger:   ldg,
		clock:    clock,
	}
}

// Store exposes the session store to the reconciliation loop and the gateway.
func (a *App) Store() *SessionStore {
	return a.store
}

// StartTimer starts metering a resource. The backend assigns the session
// identity; the local store enforces the one-session-per-resource invariant
// before and after the round trip.
func (a *App) StartTimer(ctx context.Context, req StartTimerRequest) (uuid.UUID, error) {
	if req.Mode == models.TimerModeCountdown && req.PlannedDurationSeconds <= 0 {
		return uuid.Nil, ErrInvalidDuration
	}
	if _, busy := a.store.SessionForResource(req.ResourceID); busy {
		return uuid.Nil, ErrResourceBusy
	}

	resource, err := a.catalog.GetResource(ctx, req.ResourceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownResource, req.ResourceID)
	}

	resp, err := a.backend.StartSession(ctx, backend.StartSessionRequest{
		ResourceID:             req.ResourceID,
		Mode:                   string(req.Mode),
		PlannedDurationSeconds: req.PlannedDurationSeconds,
		Scope:                  a.scope,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to start session on backend: %w", err)
	}

	session := &models.TimerSession{
		ID:            resp.SessionID,
		ResourceID:    req.ResourceID,
		Mode:          req.Mode,
		Status:        models.SessionStatusRunning,
		StartedAt:     resp.StartedAt,
		RatePerMinute: resource.RatePerMinute,
	}
	if req.Mode == models.TimerModeCountdown {
		session.PlannedDurationSeconds = req.PlannedDurationSeconds
		session.RemainingSeconds = req.PlannedDurationSeconds
	}

	if err := a.store.Insert(session); err != nil {
		// Lost the race against a concurrent start for the same resource.
		// The backend session is orphaned; stop it so it does not keep billing.
		if _, stopErr := a.backend.StopSession(ctx, resp.SessionID); stopErr != nil {
			log.Error().Err(stopErr).
				Str("session_id", resp.SessionID.String()).
				Msg("failed to stop orphaned backend session")
		}
		return uuid.Nil, err
	}

	if err := a.notifier.SessionStarted(ctx, events.SessionStartedPayload{
		SessionID:              session.ID.String(),
		ResourceID:             req.ResourceID.String(),
		Mode:                   string(req.Mode),
		StartedAt:              session.StartedAt,
		PlannedDurationSeconds: req.PlannedDurationSeconds,
	}); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to deliver start event")
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("resource_id", req.ResourceID.String()).
		Str("mode", string(req.Mode)).
		Int64("planned_duration_seconds", req.PlannedDurationSeconds).
		Msg("started timer session")
	return session.ID, nil
}

// StopTimer stops a session from Running or Expired, submits the final cost to
// the billing ledger, and clears the expiration record and any pending alert
// state. The server's terminal figures win over the local prediction.
func (a *App) StopTimer(ctx context.Context, sessionID uuid.UUID) (*FinalCost, error) {
	local, ok := a.store.Get(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}

	resp, err := a.backend.StopSession(ctx, sessionID)
	if err != nil {
		// Local state stays untouched so the caller can retry.
		return nil, fmt.Errorf("failed to stop session on backend: %w", err)
	}

	final := &FinalCost{
		SessionID:      sessionID,
		StoppedAt:      resp.StoppedAt,
		ElapsedSeconds: resp.ElapsedSeconds,
		Cost:           resp.FinalCost.Round(2),
	}

	a.store.Update(sessionID, func(s *models.TimerSession) {
		s.Stop(resp.StoppedAt)
	})

	if a.ledger != nil {
		charge := ledger.Charge{
			SessionID:      sessionID,
			ResourceID:     local.ResourceID,
			Scope:          a.scope,
			Mode:           string(local.Mode),
			StartedAt:      local.StartedAt,
			StoppedAt:      resp.StoppedAt,
			ExpiredAt:      local.ExpiredAt,
			ElapsedSeconds: resp.ElapsedSeconds,
			FinalCost:      final.Cost,
		}
		if err := a.ledger.RecordCharge(ctx, charge); err != nil {
			// The backend already owns the authoritative stop; losing the
			// local ledger row is recoverable and must not fail the stop.
			log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to record session charge")
		}
	}

	if err := a.expiries.Remove(ctx, a.scope, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to remove expiration record")
	}

	a.store.Remove(sessionID)

	if err := a.notifier.SessionStopped(ctx, events.SessionStoppedPayload{
		SessionID:      sessionID.String(),
		ResourceID:     local.ResourceID.String(),
		StoppedAt:      resp.StoppedAt,
		ElapsedSeconds: resp.ElapsedSeconds,
		FinalCost:      final.Cost,
	}); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to deliver stop event")
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Int64("elapsed_seconds", final.ElapsedSeconds).
		Str("final_cost", final.Cost.String()).
		Msg("stopped timer session")
	return final, nil
}

// PauseTimer freezes a chronometer session's billing clock.
func (a *App) PauseTimer(_ context.Context, sessionID uuid.UUID) error {
	now := a.clock.Now()
	paused := false
	if !a.store.Update(sessionID, func(s *models.TimerSession) {
		paused = s.Pause(now)
	}) {
		return ErrUnknownSession
	}
	if paused {
		log.Info().Str("session_id", sessionID.String()).Msg("paused timer session")
	}
	return nil
}

// ResumeTimer ends an in-flight pause.
func (a *App) ResumeTimer(_ context.Context, sessionID uuid.UUID) error {
	now := a.clock.Now()
	resumed := false
	if !a.store.Update(sessionID, func(s *models.TimerSession) {
		resumed = s.Resume(now)
	}) {
		return ErrUnknownSession
	}
	if resumed {
		log.Info().Str("session_id", sessionID.String()).Msg("resumed timer session")
	}
	return nil
}

// GetSessionView returns a read-only snapshot of one session.
func (a *App) GetSessionView(sessionID uuid.UUID) (*SessionView, error) {
	s, ok := a.store.Get(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	view := viewOf(&s, a.clock.Now())
	return &view, nil
}

// ListSessionViews returns snapshots of every tracked session.
func (a *App) ListSessionViews() []SessionView {
	now := a.clock.Now()
	sessions := a.store.All()
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, viewOf(&sessions[i], now))
	}
	return views
}

// TickAll advances every session one step and handles the Running -> Expired
// transitions: persist the expiration first, then fire the alert. Both are
// per-session exactly-once; the fired flag was already set under the store
// lock.
func (a *App) TickAll(ctx context.Context) {
	now := a.clock.Now()
	for _, s := range a.store.TickAll(now) {
		rec := expiry.Record{
			Scope:                  a.scope,
			SessionID:              s.ID,
			PlannedDurationSeconds: s.PlannedDurationSeconds,
			ExpiredAt:              *s.ExpiredAt,
		}
		if err := a.expiries.Record(ctx, rec); err != nil {
			log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to persist expiration")
		}

		payload := events.SessionExpiredPayload{
			SessionID:              s.ID.String(),
			ResourceID:             s.ResourceID.String(),
			Scope:                  a.scope,
			PlannedDurationSeconds: s.PlannedDurationSeconds,
			ExpiredAt:              *s.ExpiredAt,
			FinalCost:              s.AccruedCost.Round(2),
		}
		if err := a.notifier.SessionExpired(ctx, payload); err != nil {
			log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to deliver expiration alert")
		}
	}
}
