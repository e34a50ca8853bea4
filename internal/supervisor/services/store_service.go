// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package services

import (
	"context"
)

// CommandRunner interface matches *panel.Store's Run method.
//
// Satisfied by *panel.Store from internal/panel/store.go.
type CommandRunner interface {
	Run(ctx context.Context) error
}

// PanelStoreService wraps the panel store's command loop as a
// supervised service.
//
// The store is a single-writer actor: Run must be the only goroutine
// executing commands, and the supervisor guarantees exactly one Serve
// is active at a time.
//
// Example usage:
//
//	store := panel.NewStore(cfg, eng)
//	svc := services.NewPanelStoreService(store)
//	tree.AddMessagingService(svc)
type PanelStoreService struct {
	store CommandRunner
	name  string
}

// NewPanelStoreService creates a new panel store service wrapper.
func NewPanelStoreService(store CommandRunner) *PanelStoreService {
	return &PanelStoreService{
		store: store,
		name:  "panel-store",
	}
}

// Serve implements suture.Service.
//
// This method delegates to store.Run which:
//  1. Executes queued store commands in order
//  2. Flushes staged change events after each command
//  3. Returns when the context is canceled
func (p *PanelStoreService) Serve(ctx context.Context) error {
	return p.store.Run(ctx)
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (p *PanelStoreService) String() string {
	return p.name
}
