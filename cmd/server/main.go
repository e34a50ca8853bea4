// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package main is the entry point for the Patchbay server.
//
// The server hosts three cooperating pieces in one process:
//
//  1. The panel store: the authoritative panel table and lifecycle
//     state machine, backed by the external pattern engine.
//  2. The relay: a stateless websocket hub that routes commands from
//     remote clients to the primary session and fans broadcasts back.
//  3. The HTTP gateway: a synchronous REST surface over the same store
//     for scripts and tooling that cannot hold a websocket open.
//
// The authoritative (primary) session runs in-process and connects to
// the relay over loopback, so remote clients and the gateway observe
// the exact same ordering a standalone primary would produce.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): PATCHBAY_-prefixed environment variables, config.yaml,
// built-in defaults. See internal/config for the full key list. The
// essentials:
//
//	PATCHBAY_SERVER_PORT=9173
//	PATCHBAY_ENGINE_URL=http://127.0.0.1:9174
//	PATCHBAY_PANEL_RESERVED_TITLE=global
//	PATCHBAY_LOGGING_LEVEL=info
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the
// gateway drains in-flight requests, the relay closes every websocket,
// and the store loop exits after the current command.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patchbay-live/patchbay/internal/api"
	"github.com/patchbay-live/patchbay/internal/client"
	"github.com/patchbay-live/patchbay/internal/config"
	"github.com/patchbay-live/patchbay/internal/engine"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/panel"
	"github.com/patchbay-live/patchbay/internal/relay"
	"github.com/patchbay-live/patchbay/internal/supervisor"
	"github.com/patchbay-live/patchbay/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("engine_url", cfg.Engine.URL).
		Str("reserved_title", cfg.Panel.ReservedTitle).
		Msg("Starting Patchbay server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Supervisor logging goes through the zerolog-backed slog adapter
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	eng := engine.NewHTTPEngine(cfg.Engine.URL, cfg.Engine.Timeout)

	store := panel.NewStore(panel.Config{
		ReservedTitle: cfg.Panel.ReservedTitle,
		MaxCodeSize:   cfg.Panel.MaxCodeSize,
	}, eng)

	hub := relay.NewHubWithConfig(relay.Config{
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
	})

	// The in-process authoritative session. It dials the relay over
	// loopback like any other client, so its registration, snapshot
	// replies, and broadcasts take the same path remote clients see.
	primary := client.NewPrimary(cfg.Client, store)

	handler := api.NewHandler(store, hub, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.MiddlewareConfigFromConfig(cfg)))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Messaging layer: store loop and relay hub must be up before the
	// primary session dials in.
	tree.AddMessagingService(services.NewPanelStoreService(store))
	tree.AddMessagingService(services.NewRelayHubService(hub))
	tree.AddMessagingService(primary)

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP gateway service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Patchbay stopped gracefully")
}
