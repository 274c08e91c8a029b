package reconcile

import (
	"time"

	"github.com/calderaops/meterbill/internal/backend"
	"github.com/calderaops/meterbill/internal/expiry"
	"github.com/calderaops/meterbill/internal/metering"
	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// merge folds the server's authoritative session list into the local store.
//
// Rules:
//   - server-only sessions are adopted, seeded from a persisted expiration
//     record when one exists (restored straight into Expired, alert already
//     fired), else tracked as chronometer sessions from the server start time;
//   - local-only sessions were stopped elsewhere: they are stopped, their
//     expiration record cleared, and dropped from tracking;
//   - for sessions on both sides the server wins on StartedAt,
//     PausedTotalSeconds and rate, while locally-known countdown parameters
//     (planned duration, remaining, expired state, alert-fired flag) are
//     preserved because the server does not model countdown semantics.
//
// The returned ids are the local-only sessions that were dropped; the caller
// clears their expiration records.
func merge(store *metering.SessionStore, server []backend.ActiveSession, recs map[uuid.UUID]expiry.Record, now time.Time) []uuid.UUID {
	serverByID := make(map[uuid.UUID]backend.ActiveSession, len(server))
	for _, s := range server {
		serverByID[s.SessionID] = s
	}

	var dropped []uuid.UUID
	for _, local := range store.All() {
		remote, ok := serverByID[local.ID]
		if !ok {
			// Stopped elsewhere.
			store.Update(local.ID, func(s *models.TimerSession) {
				s.Stop(now)
			})
			store.Remove(local.ID)
			dropped = append(dropped, local.ID)
			log.Info().Str("session_id", local.ID.String()).Msg("session stopped on server; dropped from local tracking")
			continue
		}

		store.Update(local.ID, func(s *models.TimerSession) {
			s.StartedAt = remote.StartedAt
			s.PausedTotalSeconds = remote.PausedTotalSeconds
			if !remote.RatePerMinute.IsZero() {
				s.RatePerMinute = remote.RatePerMinute
			}
		})
		delete(serverByID, local.ID)
	}

	for _, remote := range serverByID {
		session := &models.TimerSession{
			ID:                 remote.SessionID,
			ResourceID:         remote.ResourceID,
			Mode:               models.TimerModeChronometer,
			Status:             models.SessionStatusRunning,
			StartedAt:          remote.StartedAt,
			PausedTotalSeconds: remote.PausedTotalSeconds,
			RatePerMinute:      remote.RatePerMinute,
		}

		if rec, ok := recs[remote.SessionID]; ok {
			// Expired before a restart: restore frozen, never resume counting.
			session.Mode = models.TimerModeCountdown
			session.PlannedDurationSeconds = rec.PlannedDurationSeconds
			session.AlertFired = true
			session.MarkExpired(rec.ExpiredAt)
		} else {
			session.AccruedCost = session.CostFor(session.ElapsedBillableSeconds(now))
		}

		if err := store.Insert(session); err != nil {
			log.Warn().Err(err).
				Str("session_id", remote.SessionID.String()).
				Str("resource_id", remote.ResourceID.String()).
				Msg("could not adopt server session")
			continue
		}
		log.Info().
			Str("session_id", remote.SessionID.String()).
			Str("status", string(session.Status)).
			Msg("adopted server session")
	}
	return dropped
}
