// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package client implements the two relay session kinds: the primary
// session that exposes the authoritative store over the relay, and the
// remote session that mirrors it. Both reconnect forever on a constant
// backoff; the relay link is a LAN-style control channel where steady,
// predictable retry beats exponential politeness.
package client

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/protocol"
)

const writeWait = 10 * time.Second

// wsSession serializes writes to one websocket connection. Gorilla
// allows a single concurrent writer; every sender goes through Send.
type wsSession struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Send writes one envelope with a deadline.
func (s *wsSession) Send(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.ws.WriteJSON(env)
}

// Close closes the underlying connection, unblocking any pending read.
func (s *wsSession) Close() {
	_ = s.ws.Close()
}

// readEnvelope blocks for the next decodable envelope. Malformed frames
// are logged and skipped; only transport errors end the session.
func (s *wsSession) readEnvelope() (protocol.Envelope, error) {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, err
		}
		env, err := protocol.Decode(data)
		if err != nil {
			logging.Warn().Err(err).Msg("skipping malformed envelope")
			continue
		}
		return env, nil
	}
}
