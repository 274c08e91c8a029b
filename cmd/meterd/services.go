package main

import (
	"context"
	"fmt"

	"github.com/calderaops/meterbill/internal/alert"
	"github.com/calderaops/meterbill/internal/backend"
	"github.com/calderaops/meterbill/internal/dbconfig"
	"github.com/calderaops/meterbill/internal/expiry"
	"github.com/calderaops/meterbill/internal/gateway"
	"github.com/calderaops/meterbill/internal/ledger"
	"github.com/calderaops/meterbill/internal/metering"
	"github.com/calderaops/meterbill/internal/reconcile"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Services holds the wired application components.
type Services struct {
	App        *metering.App
	Reconciler *reconcile.Loop
	Gateway    *gateway.Service

	cleanups []func()
}

func (s *Services) Close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}
	clock := clockwork.NewRealClock()

	resources, err := cfg.resources()
	if err != nil {
		return nil, fmt.Errorf("invalid resource catalog: %w", err)
	}
	catalog := metering.NewStaticCatalog(resources)

	api := backend.NewClient(cfg.Backend.BaseURL)

	var expiries expiry.Store
	var billing ledger.Ledger
	if cfg.Postgres.Enabled {
		dbCfg := dbconfig.NewConfigFromEnv()

		pool, err := dbCfg.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect expiration store: %w", err)
		}
		services.cleanups = append(services.cleanups, pool.Close)
		expiries = expiry.NewRepository(pool)

		db, err := ledger.Open(dbCfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect billing ledger: %w", err)
		}
		services.cleanups = append(services.cleanups, func() { _ = db.Close() })
		billing = ledger.NewRepository(db)
	} else {
		log.Warn().Msg("postgres disabled; expirations will not survive a restart")
		expiries = expiry.NewMemoryStore()
	}

	var notifier alert.Notifier
	if cfg.NATS.Enabled {
		jsCfg := alert.DefaultJetStreamConfig()
		if cfg.NATS.URL != "" {
			jsCfg.URL = cfg.NATS.URL
		}
		if cfg.NATS.StreamName != "" {
			jsCfg.StreamName = cfg.NATS.StreamName
		}
		if cfg.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		js, err := alert.NewJetStreamNotifier(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create alert publisher: %w", err)
		}
		services.cleanups = append(services.cleanups, func() { _ = js.Close() })
		notifier = js
	} else {
		notifier = alert.NewLogNotifier()
	}

	store := metering.NewSessionStore(cfg.Scope)
	services.App = metering.NewApp(store, catalog, api, expiries, notifier, billing, clock)
	services.Reconciler = reconcile.NewLoop(store, api, expiries, clock, cfg.reconcileInterval())
	services.Gateway = gateway.NewService(services.App, clock)

	return services, nil
}
