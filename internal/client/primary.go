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

// Primary is the authoritative client's relay session. It registers the
// primary role, pushes a full snapshot on every (re)connect, answers
// snapshot requests, executes inbound commands against the store, and
// forwards every completed store mutation to the relay.
type Primary struct {
	cfg   config.ClientConfig
	store *panel.Store
}

// NewPrimary creates a primary session over an already running store.
func NewPrimary(cfg config.ClientConfig, store *panel.Store) *Primary {
	return &Primary{cfg: cfg, store: store}
}

// String identifies the service in supervisor logs.
func (p *Primary) String() string { return "primary-session" }

// Serve dials the relay and runs sessions until ctx is canceled,
// reconnecting on a constant backoff. Suture-compatible.
func (p *Primary) Serve(ctx context.Context) error {
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Dur("backoff", p.cfg.ReconnectBackoff).Msg("primary session ended, reconnecting")

		if err := p.waitBackoff(ctx); err != nil {
			return err
		}
	}
}

// waitBackoff sleeps the constant reconnect delay. Store events arriving
// while disconnected are drained and dropped: the next connect pushes a
// full snapshot, which supersedes any missed delta.
func (p *Primary) waitBackoff(ctx context.Context) error {
	timer := time.NewTimer(p.cfg.ReconnectBackoff)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.store.Events():
		case <-timer.C:
			return nil
		}
	}
}

// session runs one connection lifetime.
func (p *Primary) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: p.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, p.cfg.RelayURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	s := &wsSession{ws: ws}
	defer s.Close()

	if err := s.Send(protocol.NewRegister(protocol.RolePrimary)); err != nil {
		return fmt.Errorf("register primary: %w", err)
	}
	if err := p.pushSnapshot(ctx, s, ""); err != nil {
		return fmt.Errorf("initial snapshot push: %w", err)
	}
	logging.Info().Str("relay", p.cfg.RelayURL).Msg("primary session established")

	// Close the socket when ctx ends so the blocked read returns.
	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go p.forwardEvents(s, done)

	for {
		env, err := s.readEnvelope()
		if err != nil {
			return err
		}
		p.handle(ctx, s, env)
	}
}

// forwardEvents relays completed store mutations until the session ends.
// A send failure is left for the read loop to observe on the broken
// connection.
func (p *Primary) forwardEvents(s *wsSession, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-p.store.Events():
			env, ok := envelopeForEvent(ev)
			if !ok {
				continue
			}
			if err := s.Send(env); err != nil {
				logging.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to forward store event")
				return
			}
		}
	}
}

// handle executes one inbound envelope. Errors never end the session:
// engine rejections are already broadcast attached to panel state, and
// protocol violations are dropped the same way the relay drops them.
func (p *Primary) handle(ctx context.Context, s *wsSession, env protocol.Envelope) {
	switch {
	case env.Type == protocol.TypeStateRequest:
		req, err := env.StateRequest()
		if err != nil {
			logging.Warn().Err(err).Msg("dropping malformed state request")
			return
		}
		if err := p.pushSnapshot(ctx, s, req.RequestID); err != nil {
			logging.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to answer state request")
		}

	case env.Type == protocol.TypeGlobalStopAll:
		if _, err := p.store.StopAll(ctx); err != nil {
			logging.Warn().Err(err).Msg("stop all failed")
		}

	case protocol.IsCommand(env.Type):
		cmd, err := env.Command()
		if err != nil {
			logging.Warn().Err(err).Msg("dropping malformed command")
			return
		}
		p.execute(ctx, env.Type, cmd.PanelID)

	default:
		logging.Warn().Str("type", string(env.Type)).Msg("dropping unexpected envelope at primary")
	}
}

// execute applies one playback command to the store.
func (p *Primary) execute(ctx context.Context, t protocol.Type, panelID string) {
	var err error
	switch t {
	case protocol.TypePanelPlay:
		_, err = p.store.Play(ctx, panelID)
	case protocol.TypePanelPause:
		_, err = p.store.Pause(ctx, panelID)
	case protocol.TypePanelToggle:
		_, err = p.store.Toggle(ctx, panelID)
	}
	if err != nil {
		// The failure is already attached to panel state and broadcast;
		// here it is only logged.
		logging.Warn().Err(err).Str("type", string(t)).Str("panel_id", panelID).Msg("command failed")
	}
}

// pushSnapshot sends the full panel model, targeted when requestID is
// set.
func (p *Primary) pushSnapshot(ctx context.Context, s *wsSession, requestID string) error {
	panels, err := p.store.List(ctx)
	if err != nil {
		return err
	}
	return s.Send(protocol.NewStateUpdate(panels, requestID))
}

// envelopeForEvent maps a store event onto its broadcast envelope.
func envelopeForEvent(ev panel.Event) (protocol.Envelope, bool) {
	switch ev.Type {
	case panel.EventPanelCreated:
		return protocol.NewPanelState(protocol.TypePanelCreated, ev.Panel), true
	case panel.EventPanelUpdated:
		return protocol.NewPanelState(protocol.TypePanelUpdated, ev.Panel), true
	case panel.EventPanelDeleted:
		return protocol.NewDeleted(ev.PanelID), true
	case panel.EventStateUpdate:
		return protocol.NewStateUpdate(ev.Panels, ""), true
	}
	return protocol.Envelope{}, false
}
