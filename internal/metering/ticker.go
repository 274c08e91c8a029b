package metering

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is the period of the clock-tick driver.
const DefaultTickInterval = time.Second

// RunTicker drives TickAll at the given interval until the context is
// cancelled. The clock is injected (clockwork), so tests advance ticks
// without wall-clock sleeps. Catch-up after a missed tick is handled inside
// the session transition itself, which recomputes from StartedAt.
func (a *App) RunTicker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("scope", a.scope).Dur("interval", interval).Msg("tick driver started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("scope", a.scope).Msg("tick driver stopped")
			return nil
		case <-ticker.Chan():
			a.TickAll(ctx)
		}
	}
}
