// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package main is a remote Patchbay client for the command line.
//
// Without flags it connects to the relay as a secondary, mirrors the
// panel table, and logs every state change until interrupted:
//
//	patchbay-remote -relay ws://127.0.0.1:9173/api/v1/ws
//
// With a command flag it connects, fires the command, waits briefly
// for the resulting broadcast, and exits:
//
//	patchbay-remote -toggle drums
//	patchbay-remote -stop-all
//
// Commands are fire-and-forget: the authoritative client decides the
// outcome and the observed broadcast is the only acknowledgement.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patchbay-live/patchbay/internal/client"
	"github.com/patchbay-live/patchbay/internal/config"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/panel"
)

// commandSettleTime is how long a one-shot command invocation stays
// connected after sending, so the resulting broadcast can be observed
// and logged before exit.
const commandSettleTime = 2 * time.Second

func main() {
	var (
		relayURL = flag.String("relay", "", "relay websocket URL (overrides CLIENT_RELAY_URL)")
		toggle   = flag.String("toggle", "", "toggle playback of the given panel id and exit")
		play     = flag.String("play", "", "start playback of the given panel id and exit")
		pause    = flag.String("pause", "", "pause playback of the given panel id and exit")
		stopAll  = flag.Bool("stop-all", false, "silence every panel and exit")
		logLevel = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *relayURL != "" {
		cfg.Client.RelayURL = *relayURL
	}

	remote := client.NewRemote(cfg.Client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- remote.Serve(ctx) }()

	if cmd, oneShot := pickCommand(*toggle, *play, *pause, *stopAll); oneShot {
		// Give the session a moment to register before sending.
		waitForSnapshot(ctx, remote)
		cmd(remote)

		select {
		case <-time.After(commandSettleTime):
		case <-ctx.Done():
		}
		logPanels(remote)
		cancel()
		<-done
		return
	}

	logging.Info().Str("relay_url", cfg.Client.RelayURL).Msg("Watching panel state, Ctrl-C to exit")
	watch(ctx, remote)

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Remote session error")
	}
}

// pickCommand maps the mutually exclusive command flags onto a single
// action. The first non-empty flag wins.
func pickCommand(toggle, play, pause string, stopAll bool) (func(*client.Remote), bool) {
	switch {
	case toggle != "":
		return func(r *client.Remote) {
			logging.Info().Str("panel_id", toggle).Msg("Sending toggle")
			r.Toggle(toggle)
		}, true
	case play != "":
		return func(r *client.Remote) {
			logging.Info().Str("panel_id", play).Msg("Sending play")
			r.Play(play)
		}, true
	case pause != "":
		return func(r *client.Remote) {
			logging.Info().Str("panel_id", pause).Msg("Sending pause")
			r.Pause(pause)
		}, true
	case stopAll:
		return func(r *client.Remote) {
			logging.Info().Msg("Sending stop-all")
			r.StopAll()
		}, true
	default:
		return nil, false
	}
}

// waitForSnapshot polls until the replica has received its first
// snapshot, bounded by the session handshake timeout.
func waitForSnapshot(ctx context.Context, remote *client.Remote) {
	deadline := time.After(5 * time.Second)
	for {
		if len(remote.Panels()) > 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			logging.Warn().Msg("No snapshot received yet, sending command anyway")
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// watch logs panel state transitions until the context is canceled.
func watch(ctx context.Context, remote *client.Remote) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := map[string]string{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range remote.Panels() {
				state := panelState(p)
				if last[p.ID] != state {
					last[p.ID] = state
					logging.Info().
						Str("panel_id", p.ID).
						Str("title", p.Title).
						Str("state", state).
						Msg("Panel state changed")
				}
			}
		}
	}
}

// logPanels prints the current replica contents.
func logPanels(remote *client.Remote) {
	for _, p := range remote.Panels() {
		logging.Info().
			Str("panel_id", p.ID).
			Str("title", p.Title).
			Str("state", panelState(p)).
			Msg("Panel")
	}
}

// panelState renders a panel's playback state for logging.
func panelState(p *panel.Panel) string {
	switch {
	case p.Playing && p.Stale:
		return "playing (edited)"
	case p.Playing:
		return "playing"
	default:
		return "stopped"
	}
}
