// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patchbay-live/patchbay/internal/config"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/panel"
	"github.com/patchbay-live/patchbay/internal/protocol"
)

// Remote mirrors the authoritative model over the relay. It registers
// the secondary role, applies broadcasts to a local replica, and sends
// playback commands fire-and-forget: no acknowledgment, no local
// prediction, convergence through the resulting broadcast.
type Remote struct {
	cfg      config.ClientConfig
	replica  *panel.Replica
	commands chan protocol.Envelope
}

// NewRemote creates a disconnected remote.
func NewRemote(cfg config.ClientConfig) *Remote {
	return &Remote{
		cfg:      cfg,
		replica:  panel.NewReplica(),
		commands: make(chan protocol.Envelope, 64),
	}
}

// String identifies the service in supervisor logs.
func (r *Remote) String() string { return "remote-session" }

// Panels returns the replica's view in display order.
func (r *Remote) Panels() []*panel.Panel {
	return r.replica.Panels()
}

// Panel returns one panel from the replica.
func (r *Remote) Panel(id string) (*panel.Panel, bool) {
	return r.replica.Get(id)
}

// Play sends a fire-and-forget play command.
func (r *Remote) Play(panelID string) {
	r.enqueue(protocol.NewCommand(protocol.TypePanelPlay, panelID))
}

// Pause sends a fire-and-forget pause command.
func (r *Remote) Pause(panelID string) {
	r.enqueue(protocol.NewCommand(protocol.TypePanelPause, panelID))
}

// Toggle sends a fire-and-forget toggle command. The outcome depends on
// the authoritative state at execution time, not this replica's view.
func (r *Remote) Toggle(panelID string) {
	r.enqueue(protocol.NewCommand(protocol.TypePanelToggle, panelID))
}

// StopAll sends a fire-and-forget stop-everything command.
func (r *Remote) StopAll() {
	r.enqueue(protocol.NewStopAll())
}

// enqueue stages a command for the active session. A full queue drops
// the command; intent is never replayed late.
func (r *Remote) enqueue(env protocol.Envelope) {
	select {
	case r.commands <- env:
	default:
		logging.Warn().Str("type", string(env.Type)).Msg("command queue full, dropping command")
	}
}

// Serve dials the relay and runs sessions until ctx is canceled,
// reconnecting on a constant backoff. Suture-compatible.
func (r *Remote) Serve(ctx context.Context) error {
	for {
		err := r.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Dur("backoff", r.cfg.ReconnectBackoff).Msg("remote session ended, reconnecting")

		if err := r.waitBackoff(ctx); err != nil {
			return err
		}
	}
}

// waitBackoff sleeps the constant reconnect delay, dropping commands
// issued while disconnected: stale intent must not fire when the link
// comes back.
func (r *Remote) waitBackoff(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.ReconnectBackoff)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.commands:
			logging.Debug().Str("type", string(env.Type)).Msg("dropping command issued while disconnected")
		case <-timer.C:
			return nil
		}
	}
}

// session runs one connection lifetime. Registration triggers a
// relay-side snapshot request, so the first state.update arrives without
// the remote asking for it.
func (r *Remote) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, r.cfg.RelayURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	s := &wsSession{ws: ws}
	defer s.Close()

	if err := s.Send(protocol.NewRegister(protocol.RoleSecondary)); err != nil {
		return fmt.Errorf("register secondary: %w", err)
	}
	logging.Info().Str("relay", r.cfg.RelayURL).Msg("remote session established")

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go r.forwardCommands(s, done)

	for {
		env, err := s.readEnvelope()
		if err != nil {
			return err
		}
		r.apply(env)
	}
}

// forwardCommands sends staged commands until the session ends.
func (r *Remote) forwardCommands(s *wsSession, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case env := <-r.commands:
			if err := s.Send(env); err != nil {
				logging.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to send command")
				return
			}
		}
	}
}

// apply folds one broadcast into the replica.
func (r *Remote) apply(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeStateUpdate:
		update, err := env.StateUpdate()
		if err != nil {
			logging.Warn().Err(err).Msg("dropping malformed state update")
			return
		}
		r.replica.ApplySnapshot(update.Panels)

	case protocol.TypePanelCreated, protocol.TypePanelUpdated:
		state, err := env.PanelState()
		if err != nil {
			logging.Warn().Err(err).Msg("dropping malformed panel broadcast")
			return
		}
		r.replica.ApplyPanel(state.Panel)

	case protocol.TypePanelDeleted:
		del, err := env.Deleted()
		if err != nil {
			logging.Warn().Err(err).Msg("dropping malformed delete broadcast")
			return
		}
		r.replica.ApplyDeleted(del.PanelID)

	default:
		logging.Warn().Str("type", string(env.Type)).Msg("dropping unexpected envelope at remote")
	}
}
