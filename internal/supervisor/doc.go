// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

/*
Package supervisor provides process supervision for Patchbay using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of all long-running services in the application. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation,
and graceful shutdown.

# Overview

The supervisor tree organizes services into two layers for failure isolation:

	RootSupervisor ("patchbay")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── RelayHubService
	│   ├── PanelStoreService
	│   └── PrimarySession (when the server hosts the authoritative client)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

This hierarchy ensures that:
  - A crashed relay session restarts without dropping HTTP traffic
  - A gateway failure doesn't tear down live relay connections
  - Each layer has independent failure counting

# Usage Example

Basic setup in main.go:

	logger := slog.Default()
	config := supervisor.DefaultTreeConfig()

	tree, err := supervisor.NewSupervisorTree(logger, config)
	if err != nil {
	    log.Fatal(err)
	}

	tree.AddMessagingService(services.NewRelayHubService(hub))
	tree.AddMessagingService(services.NewPanelStoreService(store))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil {
	    log.Printf("Supervisor stopped: %v", err)
	}

# Configuration

The TreeConfig controls restart behavior. Default values match suture's
production-ready defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

The primary and remote session types in internal/client implement this
interface directly and need no wrapper.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

Common causes:
  - Goroutines not respecting context cancellation
  - Blocked network I/O without deadlines

# See Also

  - internal/supervisor/services: Service wrappers
  - github.com/thejerf/suture/v4: Underlying library
*/
package supervisor
