package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	// Restore persisted expirations and adopt server sessions before the
	// first tick, so a session that expired before a restart comes back
	// Expired instead of silently resuming.
	if err := services.Reconciler.SyncOnce(ctx); err != nil {
		log.Error().Err(err).Msg("initial sync failed; continuing with empty local state")
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("component", name).Msg("component exited with error")
			}
		}()
	}

	run("ticker", func(ctx context.Context) error {
		return services.App.RunTicker(ctx, cfg.tickInterval())
	})
	run("reconciler", services.Reconciler.Run)
	run("ws-hub", services.Gateway.Hub().Run)

	server := services.Gateway.NewServer(getEnv("PORT", "8080"))
	run("http", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", server.Addr).Str("scope", cfg.Scope).Msg("meterd listening")
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})

	wg.Wait()
	log.Info().Msg("meterd shut down")
}
