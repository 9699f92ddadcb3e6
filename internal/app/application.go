// Package app assembles the relay: envelope store, registry, hub,
// websocket handler, and HTTP server, started and stopped in dependency
// order.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"classboard/internal/api"
	"classboard/internal/config"
	"classboard/internal/database"
	"classboard/internal/relay"
	"classboard/pkg/interfaces"
)

type Application struct {
	cfg        *config.Config
	store      interfaces.EnvelopeStore
	registry   *relay.Registry
	hub        *relay.Hub
	httpServer *http.Server
	log        zerolog.Logger
}

// NewApplication initializes every component. Initialization order is
// store, registry, hub, websocket handler, API, HTTP server.
func NewApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var store interfaces.EnvelopeStore
	if cfg.Database.Enabled {
		dbCfg := database.DefaultConfig()
		dbCfg.Path = cfg.Database.Path
		if cfg.Database.RetryDelay > 0 {
			dbCfg.RetryDelay = cfg.Database.RetryDelay
		}
		manager, err := database.NewManager(dbCfg, log)
		if err != nil {
			return nil, fmt.Errorf("initialize envelope store: %w", err)
		}
		store = manager
	}

	registry := relay.NewRegistry()
	hub := relay.NewHub(registry, store, log)

	wsHandler := relay.NewHandler(hub, relay.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
	}, log)

	server := api.NewServer(registry, store, wsHandler, log)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		hub:        hub,
		httpServer: httpServer,
		log:        log.With().Str("component", "app").Logger(),
	}, nil
}

// Start launches the hub and the HTTP listener. It returns once the
// listener is accepting connections or fails to bind.
func (a *Application) Start(ctx context.Context) error {
	a.log.Info().Str("addr", a.httpServer.Addr).Msg("starting relay")

	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		_ = a.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		a.log.Info().Msg("relay started")
		return nil
	case <-ctx.Done():
		_ = a.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP, hub, store.
func (a *Application) Stop(ctx context.Context) error {
	a.log.Info().Msg("shutting down relay")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("http shutdown")
	}
	if err := a.hub.Stop(); err != nil {
		a.log.Error().Err(err).Msg("hub shutdown")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error().Err(err).Msg("store shutdown")
		}
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (a *Application) Addr() string {
	return a.httpServer.Addr
}
