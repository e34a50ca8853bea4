// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package relay implements the stateless fan-out hub. The relay holds no
// panel state and applies no ordering beyond per-connection FIFO: commands
// from secondaries are forwarded to the primary, broadcasts from the
// primary are fanned out to secondaries, and snapshot requests are
// correlated so the reply reaches only the requester. A command with no
// primary connected is dropped, never queued.
package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/metrics"
	"github.com/patchbay-live/patchbay/internal/protocol"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was
	// canceled. This is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was
	// exceeded during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// frame is one raw inbound websocket message awaiting interpretation.
type frame struct {
	conn *Conn
	data []byte
}

// Hub maintains the set of active connections and routes envelopes by
// role. Lifecycle and routing are serialized through the hub goroutine;
// the role table is additionally guarded for concurrent readers.
type Hub struct {
	Register   chan *Conn
	Unregister chan *Conn
	inbound    chan frame

	mu      sync.RWMutex
	conns   map[*Conn]bool
	roles   map[*Conn]protocol.Role
	primary *Conn

	// pending maps snapshot request ids to the requesting secondary.
	// Owned by the hub goroutine.
	pending map[string]*Conn

	sendBuffer     int
	maxMessageSize int64
}

// Config holds relay tuning knobs.
type Config struct {
	// SendBuffer is the per-connection outbound envelope buffer. A
	// connection that falls this far behind is closed as a slow consumer.
	SendBuffer int

	// MaxMessageSize is the maximum accepted inbound frame size in bytes.
	MaxMessageSize int64
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     256,
		MaxMessageSize: 512 * 1024, // 512 KB
	}
}

// NewHub creates a new Hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultConfig())
}

// NewHubWithConfig creates a new Hub with the given configuration.
func NewHubWithConfig(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512 * 1024
	}
	return &Hub{
		Register:       make(chan *Conn),
		Unregister:     make(chan *Conn),
		inbound:        make(chan frame, 256),
		conns:          make(map[*Conn]bool),
		roles:          make(map[*Conn]protocol.Role),
		pending:        make(map[string]*Conn),
		sendBuffer:     cfg.SendBuffer,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// connection and returns ctx.Err(). Designed for suture supervision.
//
// Selection is priority-ordered so behavior is predictable when multiple
// channels are ready: shutdown first, then connection lifecycle, then
// inbound frames. Go's select picks randomly among ready cases, which
// would otherwise let a frame from a connection race its own
// deregistration.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: connection lifecycle (non-blocking check)
		select {
		case conn := <-h.Register:
			h.addConn(conn)
			continue
		case conn := <-h.Unregister:
			h.removeConn(conn)
			continue
		default:
		}

		// Priority 3: inbound frames, or block until any event
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case conn := <-h.Register:
			h.addConn(conn)
		case conn := <-h.Unregister:
			h.removeConn(conn)
		case f := <-h.inbound:
			h.handleFrame(f)
		}
	}
}

// addConn admits a connection with the unknown role. It participates in
// nothing until it registers.
func (h *Hub) addConn(c *Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.roles[c] = protocol.RoleUnknown
	total := len(h.conns)
	h.mu.Unlock()

	h.updateConnGauges()
	logging.Info().Uint64("conn_id", c.id).Int("total_conns", total).Msg("relay connection opened")
}

// removeConn deregisters a connection. Idempotent: a second removal of
// the same connection is a no-op.
func (h *Hub) removeConn(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	delete(h.roles, c)
	if h.primary == c {
		h.primary = nil
	}
	total := len(h.conns)
	h.mu.Unlock()

	for rid, waiter := range h.pending {
		if waiter == c {
			delete(h.pending, rid)
		}
	}

	close(c.send)
	h.updateConnGauges()
	logging.Info().Uint64("conn_id", c.id).Int("total_conns", total).Msg("relay connection closed")
}

// handleFrame interprets one inbound frame. Protocol errors are logged
// and dropped; the connection stays up.
func (h *Hub) handleFrame(f frame) {
	env, err := protocol.Decode(f.data)
	if err != nil {
		metrics.RelayProtocolErrors.WithLabelValues("malformed_frame").Inc()
		logging.Warn().Err(err).Uint64("conn_id", f.conn.id).Msg("dropping malformed frame")
		return
	}

	switch {
	case env.Type == protocol.TypeClientRegister:
		h.handleRegister(f.conn, env)

	case protocol.IsCommand(env.Type):
		h.routeFromSecondary(f.conn, env)

	case protocol.IsBroadcast(env.Type):
		h.routeFromPrimary(f.conn, env)

	case env.Type == protocol.TypeStateRequest:
		h.handleStateRequest(f.conn)

	default:
		metrics.RelayProtocolErrors.WithLabelValues("unexpected_direction").Inc()
		logging.Warn().Str("type", string(env.Type)).Uint64("conn_id", f.conn.id).Msg("dropping envelope with invalid direction")
	}
}

// handleStateRequest serves an explicit snapshot request from a secondary.
// The relay asks the primary with its own correlation id and routes the
// reply back, exactly as it does after registration, so the requester's id
// never has to survive the round trip.
func (h *Hub) handleStateRequest(c *Conn) {
	h.mu.RLock()
	role := h.roles[c]
	primary := h.primary
	h.mu.RUnlock()

	if role != protocol.RoleSecondary {
		metrics.RelayProtocolErrors.WithLabelValues("unexpected_direction").Inc()
		logging.Warn().Str("role", string(role)).Uint64("conn_id", c.id).Msg("dropping state request from non-secondary connection")
		return
	}

	if primary == nil {
		logging.Debug().Uint64("conn_id", c.id).Msg("no primary connected, state request waits for next push")
		return
	}

	h.requestSnapshot(c, primary)
}

// handleRegister assigns a role. Re-registering the same role is
// idempotent; registering a different role replaces the old one. A second
// primary wins the role and the previous primary is demoted to unknown.
func (h *Hub) handleRegister(c *Conn, env protocol.Envelope) {
	reg, err := env.Register()
	if err != nil {
		metrics.RelayProtocolErrors.WithLabelValues("invalid_register").Inc()
		logging.Warn().Err(err).Uint64("conn_id", c.id).Msg("dropping invalid register")
		return
	}

	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		// Raced its own disconnect; nothing to register.
		h.mu.Unlock()
		return
	}

	switch reg.Role {
	case protocol.RolePrimary:
		if h.primary != nil && h.primary != c {
			h.roles[h.primary] = protocol.RoleUnknown
			logging.Warn().
				Uint64("old_conn_id", h.primary.id).
				Uint64("new_conn_id", c.id).
				Msg("primary replaced, demoting previous connection")
		}
		h.primary = c
		h.roles[c] = protocol.RolePrimary
		h.mu.Unlock()
		h.updateConnGauges()
		logging.Info().Uint64("conn_id", c.id).Msg("primary registered")

	case protocol.RoleSecondary:
		if h.roles[c] == protocol.RoleSecondary {
			// Already a secondary; an identical re-register is a no-op and
			// must not trigger another snapshot round.
			h.mu.Unlock()
			return
		}
		if h.primary == c {
			h.primary = nil
		}
		h.roles[c] = protocol.RoleSecondary
		primary := h.primary
		h.mu.Unlock()
		h.updateConnGauges()
		logging.Info().Uint64("conn_id", c.id).Msg("secondary registered")

		// Ask the primary for a snapshot on the new secondary's behalf.
		// With no primary the secondary just waits for the next full push.
		if primary != nil {
			h.requestSnapshot(c, primary)
		}
	}
}

// requestSnapshot relays a correlated state.request to the primary.
func (h *Hub) requestSnapshot(secondary, primary *Conn) {
	rid := uuid.New().String()[:8]
	h.pending[rid] = secondary
	metrics.RelaySnapshotRequests.Inc()

	if !h.deliver(primary, protocol.NewStateRequest(rid)) {
		delete(h.pending, rid)
		logging.Warn().Uint64("conn_id", secondary.id).Msg("snapshot request undeliverable to primary")
	}
}

// routeFromSecondary forwards a command to the primary. Commands with no
// primary connected are dropped so a late primary never replays stale
// intent.
func (h *Hub) routeFromSecondary(c *Conn, env protocol.Envelope) {
	h.mu.RLock()
	role := h.roles[c]
	primary := h.primary
	h.mu.RUnlock()

	if role != protocol.RoleSecondary {
		metrics.RelayProtocolErrors.WithLabelValues("command_from_nonsecondary").Inc()
		logging.Warn().Str("type", string(env.Type)).Str("role", string(role)).Uint64("conn_id", c.id).Msg("dropping command from non-secondary connection")
		return
	}

	if primary == nil {
		metrics.RelayCommandsDropped.Inc()
		logging.Warn().Str("type", string(env.Type)).Uint64("conn_id", c.id).Msg("no primary connected, dropping command")
		return
	}

	if h.deliver(primary, env) {
		metrics.RelayCommandsRouted.WithLabelValues(string(env.Type)).Inc()
	}
}

// routeFromPrimary fans a broadcast out to every secondary in connection
// id order. A state.update carrying a request id goes only to the
// connection that asked for it.
func (h *Hub) routeFromPrimary(c *Conn, env protocol.Envelope) {
	h.mu.RLock()
	isPrimary := h.primary == c
	h.mu.RUnlock()

	if !isPrimary {
		metrics.RelayProtocolErrors.WithLabelValues("broadcast_from_nonprimary").Inc()
		logging.Warn().Str("type", string(env.Type)).Uint64("conn_id", c.id).Msg("dropping broadcast from non-primary connection")
		return
	}

	if env.Type == protocol.TypeStateUpdate {
		if update, err := env.StateUpdate(); err == nil && update.RequestID != "" {
			h.deliverSnapshot(update.RequestID, env)
			return
		}
	}

	for _, secondary := range h.secondariesInOrder() {
		h.deliver(secondary, env)
	}
	metrics.RelayBroadcasts.WithLabelValues(string(env.Type)).Inc()
}

// deliverSnapshot relays a correlated state.update to the requesting
// secondary only. Stale correlations (requester already gone) are
// dropped silently; the requester will be served on its next connect.
func (h *Hub) deliverSnapshot(requestID string, env protocol.Envelope) {
	waiter, ok := h.pending[requestID]
	if !ok {
		logging.Debug().Str("request_id", requestID).Msg("snapshot reply with no waiting requester")
		return
	}
	delete(h.pending, requestID)

	h.deliver(waiter, env)
	metrics.RelayBroadcasts.WithLabelValues(string(env.Type)).Inc()
	logging.Debug().Str("request_id", requestID).Uint64("conn_id", waiter.id).Msg("targeted snapshot delivered")
}

// secondariesInOrder returns all secondary connections sorted by id so
// fan-out order is deterministic.
func (h *Hub) secondariesInOrder() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	secondaries := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		if h.roles[conn] == protocol.RoleSecondary {
			secondaries = append(secondaries, conn)
		}
	}
	sort.Slice(secondaries, func(i, j int) bool {
		return secondaries[i].id < secondaries[j].id
	})
	return secondaries
}

// deliver enqueues an envelope on one connection's send channel. A full
// channel means the peer stopped draining; the connection is removed
// rather than allowed to stall the hub.
func (h *Hub) deliver(c *Conn, env protocol.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		logging.Warn().Uint64("conn_id", c.id).Str("type", string(env.Type)).Msg("send buffer full, closing slow connection")
		h.removeConn(c)
		return false
	}
}

// Role returns the current role of a connection.
func (h *Hub) Role(c *Conn) protocol.Role {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roles[c]
}

// ConnCount returns the number of open connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HasPrimary reports whether a primary is currently registered.
func (h *Hub) HasPrimary() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary != nil
}

// updateConnGauges refreshes the per-role connection gauges.
func (h *Hub) updateConnGauges() {
	h.mu.RLock()
	counts := map[protocol.Role]int{}
	for _, role := range h.roles {
		counts[role]++
	}
	h.mu.RUnlock()

	for _, role := range []protocol.Role{protocol.RoleUnknown, protocol.RolePrimary, protocol.RoleSecondary} {
		metrics.RelayConnections.WithLabelValues(string(role)).Set(float64(counts[role]))
	}
}

// logGracefulShutdown closes all connections and logs the shutdown.
// Context cancellation is expected behavior, not an error.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	count := h.ConnCount()
	h.closeAll()

	logging.Info().
		Str("component", "relay-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("conns_closed", count).
		Msg("relay hub stopped")
}

// getShutdownReason maps the context error onto a shutdown reason.
func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAll closes every connection in id order.
func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })

	for _, conn := range conns {
		close(conn.send)
		delete(h.conns, conn)
		delete(h.roles, conn)
	}
	h.primary = nil
	h.mu.Unlock()

	h.pending = make(map[string]*Conn)
	logging.Info().Msg("closed all relay connections during shutdown")
}
