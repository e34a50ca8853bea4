// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

/*
Package services provides suture.Service wrappers for Patchbay components.

This package adapts application components to the suture v4 supervision
model, translating various lifecycle patterns (Run, RunWithContext,
ListenAndServe) into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation to the Serve pattern
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

Relay Hub (RelayHubService):
  - Wraps relay.Hub with context support
  - Handles connection cleanup on shutdown

Panel Store (PanelStoreService):
  - Wraps the panel store's single-writer command loop
  - Exactly one Serve is active at a time under supervision

Each wrapper accepts an interface rather than a concrete type so tests
can substitute mocks and the package avoids import cycles. The primary
and remote session types in internal/client already implement
suture.Service and are added to the tree without a wrapper.
*/
package services
