package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/calderaops/meterbill/internal/backend"
	"github.com/calderaops/meterbill/internal/expiry"
	"github.com/calderaops/meterbill/internal/metering"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often the loop pulls the authoritative session list.
const DefaultInterval = 30 * time.Second

// Loop periodically pulls the server's session list for the scope and merges
// it with local countdown state. A failed pull leaves local state untouched
// and is retried on the next interval; it never clears active sessions on a
// transient network error.
type Loop struct {
	store    *metering.SessionStore
	backend  backend.API
	expiries expiry.Store
	clock    clockwork.Clock
	interval time.Duration
	wakeCh   chan struct{}
}

func NewLoop(store *metering.SessionStore, api backend.API, expiries expiry.Store, clock clockwork.Clock, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		store:    store,
		backend:  api,
		expiries: expiries,
		clock:    clock,
		interval: interval,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Wake triggers a pull ahead of schedule, e.g. right after a local start so
// the server view converges quickly.
func (l *Loop) Wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// SyncOnce performs one pull-and-merge cycle.
func (l *Loop) SyncOnce(ctx context.Context) error {
	scope := l.store.Scope()

	server, err := l.backend.ActiveSessions(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to fetch active sessions: %w", err)
	}

	recs, err := l.expiries.ListByScope(ctx, scope)
	if err != nil {
		// Merge can still proceed; adopted sessions just lose their
		// persisted countdown metadata until the store recovers.
		log.Error().Err(err).Str("scope", scope).Msg("failed to load expiration records")
	}
	recsByID := make(map[uuid.UUID]expiry.Record, len(recs))
	for _, rec := range recs {
		recsByID[rec.SessionID] = rec
	}

	dropped := merge(l.store, server, recsByID, l.clock.Now())
	for _, id := range dropped {
		if err := l.expiries.Remove(ctx, scope, id); err != nil {
			log.Error().Err(err).Str("session_id", id.String()).Msg("failed to remove expiration record")
		}
	}

	log.Debug().
		Str("scope", scope).
		Int("server_sessions", len(server)).
		Int("tracked_sessions", l.store.Len()).
		Msg("reconciled session state")
	return nil
}

// Run syncs once immediately, then on every interval (or wake) until the
// context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Str("scope", l.store.Scope()).Dur("interval", l.interval).Msg("reconciliation loop started")

	if err := l.SyncOnce(ctx); err != nil {
		log.Error().Err(err).Msg("initial reconciliation failed; retrying on next interval")
	}

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("scope", l.store.Scope()).Msg("reconciliation loop stopped")
			return nil
		case <-ticker.Chan():
		case <-l.wakeCh:
			log.Debug().Msg("reconciliation loop woken early")
		}

		if err := l.SyncOnce(ctx); err != nil {
			log.Error().Err(err).Msg("reconciliation failed; local state left untouched")
		}
	}
}
