// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package api provides the synchronous control gateway: HTTP routes over
// the same authoritative store the websocket command path uses, so a
// curl-driven mutation and an interactive edit travel one code path and
// produce one broadcast stream.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patchbay-live/patchbay/internal/config"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/panel"
	"github.com/patchbay-live/patchbay/internal/relay"
)

// Handler contains dependencies for the gateway handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, websocket upgrade (this file)
//   - handlers_panels.go: panel CRUD and playback endpoints
//   - handlers_health.go: health and readiness endpoints
//   - helpers.go: respond/validate helpers shared by all of them
type Handler struct {
	store     *panel.Store
	hub       *relay.Hub
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a gateway handler bound to the authoritative store
// and the relay hub.
func NewHandler(store *panel.Store, hub *relay.Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:     store,
		hub:       hub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// WebSocket upgrades the request into a relay connection. The connection
// joins with the unknown role until it sends client.register.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "relay unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	conn := relay.NewConn(h.hub, ws)
	h.hub.Register <- conn
	conn.Start()
}

// getUpgrader creates a websocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates connection origins against the CORS
// allowlist. Non-browser clients omit the Origin header and are allowed;
// the relay roles, not the transport, gate what a connection may do.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.config == nil {
		return true
	}
	for _, allowed := range h.config.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}
