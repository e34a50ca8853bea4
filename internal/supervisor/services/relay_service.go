// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package services

import (
	"context"
)

// ContextHub interface matches *relay.Hub's RunWithContext method.
//
// This interface allows the RelayHubService to work with the Hub
// without importing the relay package, avoiding circular dependencies.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// RelayHubService wraps the relay hub as a supervised service.
//
// The hub's RunWithContext method already implements the suture.Service
// pattern, so this wrapper simply delegates to it and provides a name
// for logging.
//
// Example usage:
//
//	hub := relay.NewHub(cfg)
//	svc := services.NewRelayHubService(hub)
//	tree.AddMessagingService(svc)
type RelayHubService struct {
	hub  ContextHub
	name string
}

// NewRelayHubService creates a new relay hub service wrapper.
func NewRelayHubService(hub ContextHub) *RelayHubService {
	return &RelayHubService{
		hub:  hub,
		name: "relay-hub",
	}
}

// Serve implements suture.Service.
//
// This method delegates to hub.RunWithContext which:
//  1. Processes connection registration and frame routing
//  2. Returns when the context is canceled
//  3. Gracefully closes all connections on shutdown
//
// The method returns ctx.Err() on normal shutdown.
func (r *RelayHubService) Serve(ctx context.Context) error {
	return r.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (r *RelayHubService) String() string {
	return r.name
}
