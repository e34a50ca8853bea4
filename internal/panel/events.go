// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

// EventType is the closed set of store event tags. Each tag corresponds
// one-to-one with a protocol broadcast type; there is no open-ended
// emitter surface.
type EventType string

const (
	EventPanelCreated EventType = "panel.created"
	EventPanelUpdated EventType = "panel.updated"
	EventPanelDeleted EventType = "panel.deleted"
	EventStateUpdate  EventType = "state.update"
)

// Event is one completed mutation, emitted after the model change. Every
// mutation emits exactly one event; there is no batching window visible to
// observers.
type Event struct {
	Type EventType

	// Panel is set for created/updated events (a clone, safe to share).
	Panel *Panel

	// PanelID is set for deleted events.
	PanelID string

	// Panels is the full ordered panel set, set for state.update events.
	Panels []*Panel
}
