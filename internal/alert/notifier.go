package alert

import (
	"context"

	"github.com/calderaops/meterbill/internal/events"
	"github.com/rs/zerolog/log"
)

// Notifier receives session lifecycle events. SessionExpired is the one signal
// with an exactly-once contract: the metering core guarantees at-most-once
// delivery per session (the fired flag lives on the session itself), so
// implementations do not need their own dedup state.
type Notifier interface {
	SessionStarted(ctx context.Context, payload events.SessionStartedPayload) error
	SessionExpired(ctx context.Context, payload events.SessionExpiredPayload) error
	SessionStopped(ctx context.Context, payload events.SessionStoppedPayload) error
}

// LogNotifier logs events. Used in development and as a fallback when no
// message bus is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SessionStarted(_ context.Context, payload events.SessionStartedPayload) error {
	log.Info().
		Str("session_id", payload.SessionID).
		Str("resource_id", payload.ResourceID).
		Str("mode", payload.Mode).
		Msg("session started")
	return nil
}

func (n *LogNotifier) SessionExpired(_ context.Context, payload events.SessionExpiredPayload) error {
	log.Info().
		Str("session_id", payload.SessionID).
		Str("resource_id", payload.ResourceID).
		Str("final_cost", payload.FinalCost.String()).
		Msg("session expired")
	return nil
}

func (n *LogNotifier) SessionStopped(_ context.Context, payload events.SessionStoppedPayload) error {
	log.Info().
		Str("session_id", payload.SessionID).
		Str("final_cost", payload.FinalCost.String()).
		Msg("session stopped")
	return nil
}
