// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/panel"
	"github.com/patchbay-live/patchbay/internal/protocol"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// createTestConn creates a connection without a websocket; routing only
// touches the send channel.
func createTestConn(hub *Hub) *Conn {
	return &Conn{id: connIDCounter.Add(1), hub: hub, send: make(chan protocol.Envelope, 256)}
}

// register admits a connection and registers its role synchronously.
func register(hub *Hub, c *Conn, role protocol.Role) {
	hub.addConn(c)
	data, _ := protocol.Encode(protocol.NewRegister(role))
	hub.handleFrame(frame{conn: c, data: data})
}

// sendFrame feeds an envelope through the hub's frame handler.
func sendFrame(hub *Hub, c *Conn, env protocol.Envelope) {
	data, _ := protocol.Encode(env)
	hub.handleFrame(frame{conn: c, data: data})
}

// recvType asserts the next envelope on a connection and returns it.
func recvType(t *testing.T, c *Conn, want protocol.Type) protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.send:
		if env.Type != want {
			t.Fatalf("received %s, want %s", env.Type, want)
		}
		return env
	default:
		t.Fatalf("no envelope received, want %s", want)
		return protocol.Envelope{}
	}
}

func assertEmpty(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case env := <-c.send:
		t.Fatalf("unexpected envelope %s", env.Type)
	default:
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.conns == nil || hub.roles == nil || hub.pending == nil {
		t.Fatal("hub maps not initialized")
	}
	if hub.Register == nil || hub.Unregister == nil || hub.inbound == nil {
		t.Fatal("hub channels not initialized")
	}
	if hub.HasPrimary() {
		t.Error("fresh hub has no primary")
	}
}

func TestRegisterAssignsRoles(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)

	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)

	if got := hub.Role(primary); got != protocol.RolePrimary {
		t.Errorf("primary role = %s", got)
	}
	if got := hub.Role(secondary); got != protocol.RoleSecondary {
		t.Errorf("secondary role = %s", got)
	}
	if !hub.HasPrimary() {
		t.Error("hub should report a primary")
	}
	if hub.ConnCount() != 2 {
		t.Errorf("conn count = %d", hub.ConnCount())
	}
}

func TestUnregisteredConnectionHasUnknownRole(t *testing.T) {
	hub := NewHub()
	c := createTestConn(hub)
	hub.addConn(c)

	if got := hub.Role(c); got != protocol.RoleUnknown {
		t.Errorf("role = %s, want unknown", got)
	}

	// Commands from an unregistered connection are dropped.
	sendFrame(hub, c, protocol.NewCommand(protocol.TypePanelPlay, "p1"))
	assertEmpty(t, c)
}

func TestCommandRoutedToPrimary(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	// The secondary's registration asks the primary for a snapshot.
	recvType(t, primary, protocol.TypeStateRequest)

	sendFrame(hub, secondary, protocol.NewCommand(protocol.TypePanelToggle, "p1"))

	env := recvType(t, primary, protocol.TypePanelToggle)
	cmd, err := env.Command()
	if err != nil {
		t.Fatal(err)
	}
	if cmd.PanelID != "p1" {
		t.Errorf("panelId = %q", cmd.PanelID)
	}
}

func TestCommandDroppedWithoutPrimary(t *testing.T) {
	hub := NewHub()
	secondary := createTestConn(hub)
	register(hub, secondary, protocol.RoleSecondary)

	sendFrame(hub, secondary, protocol.NewCommand(protocol.TypePanelPlay, "p1"))
	sendFrame(hub, secondary, protocol.NewStopAll())

	// A primary arriving later must not receive the dropped commands.
	primary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	assertEmpty(t, primary)
}

func TestBroadcastFansOutToSecondariesOnly(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	s1 := createTestConn(hub)
	s2 := createTestConn(hub)
	unregistered := createTestConn(hub)

	register(hub, primary, protocol.RolePrimary)
	register(hub, s1, protocol.RoleSecondary)
	recvType(t, primary, protocol.TypeStateRequest)
	register(hub, s2, protocol.RoleSecondary)
	recvType(t, primary, protocol.TypeStateRequest)
	hub.addConn(unregistered)

	p := &panel.Panel{ID: "p1", Playing: true}
	sendFrame(hub, primary, protocol.NewPanelState(protocol.TypePanelUpdated, p))

	for _, s := range []*Conn{s1, s2} {
		env := recvType(t, s, protocol.TypePanelUpdated)
		state, err := env.PanelState()
		if err != nil {
			t.Fatal(err)
		}
		if state.Panel.ID != "p1" {
			t.Errorf("panel id = %q", state.Panel.ID)
		}
	}
	assertEmpty(t, unregistered)
	assertEmpty(t, primary)
}

func TestBroadcastFromNonPrimaryDropped(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	recvType(t, primary, protocol.TypeStateRequest)

	sendFrame(hub, secondary, protocol.NewStateUpdate(nil, ""))
	assertEmpty(t, primary)
	assertEmpty(t, secondary)
}

func TestSecondaryRegistrationTriggersTargetedSnapshot(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	bystander := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, bystander, protocol.RoleSecondary)

	// Drain the bystander's own snapshot request cycle.
	reqEnv := recvType(t, primary, protocol.TypeStateRequest)
	bystanderReq, _ := reqEnv.StateRequest()
	sendFrame(hub, primary, protocol.NewStateUpdate(nil, bystanderReq.RequestID))
	recvType(t, bystander, protocol.TypeStateUpdate)

	// A new secondary registers: the relay asks the primary on its behalf.
	requester := createTestConn(hub)
	register(hub, requester, protocol.RoleSecondary)

	reqEnv = recvType(t, primary, protocol.TypeStateRequest)
	req, err := reqEnv.StateRequest()
	if err != nil {
		t.Fatal(err)
	}
	if req.RequestID == "" {
		t.Fatal("snapshot request must carry a correlation id")
	}

	// The correlated reply goes only to the requester.
	snapshot := []*panel.Panel{{ID: "p1"}, {ID: "p2"}}
	sendFrame(hub, primary, protocol.NewStateUpdate(snapshot, req.RequestID))

	env := recvType(t, requester, protocol.TypeStateUpdate)
	update, err := env.StateUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if len(update.Panels) != 2 {
		t.Errorf("snapshot panels = %d, want 2", len(update.Panels))
	}
	assertEmpty(t, bystander)
}

func TestSecondaryRegistrationWithoutPrimaryWaits(t *testing.T) {
	hub := NewHub()
	secondary := createTestConn(hub)
	register(hub, secondary, protocol.RoleSecondary)

	if len(hub.pending) != 0 {
		t.Error("no snapshot request should be pending without a primary")
	}

	// The next primary full push reaches the secondary.
	primary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	sendFrame(hub, primary, protocol.NewStateUpdate([]*panel.Panel{{ID: "p1"}}, ""))
	recvType(t, secondary, protocol.TypeStateUpdate)
}

func TestLastRegisteredPrimaryWins(t *testing.T) {
	hub := NewHub()
	old := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, old, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	recvType(t, old, protocol.TypeStateRequest)

	newer := createTestConn(hub)
	register(hub, newer, protocol.RolePrimary)

	if got := hub.Role(old); got != protocol.RoleUnknown {
		t.Errorf("demoted primary role = %s, want unknown", got)
	}
	if got := hub.Role(newer); got != protocol.RolePrimary {
		t.Errorf("new primary role = %s", got)
	}

	// Broadcasts from the demoted connection are dropped.
	sendFrame(hub, old, protocol.NewStateUpdate(nil, ""))
	assertEmpty(t, secondary)

	// Broadcasts from the new primary fan out.
	sendFrame(hub, newer, protocol.NewStateUpdate(nil, ""))
	recvType(t, secondary, protocol.TypeStateUpdate)
}

func TestReregisterSameRoleIsIdempotent(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, primary, protocol.RolePrimary)

	if hub.ConnCount() != 1 {
		t.Errorf("conn count = %d", hub.ConnCount())
	}
	if got := hub.Role(primary); got != protocol.RolePrimary {
		t.Errorf("role = %s", got)
	}
}

func TestReregisterSecondarySkipsSnapshotRound(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	regEnv := recvType(t, primary, protocol.TypeStateRequest)
	regReq, _ := regEnv.StateRequest()
	sendFrame(hub, primary, protocol.NewStateUpdate(nil, regReq.RequestID))
	recvType(t, secondary, protocol.TypeStateUpdate)

	sendFrame(hub, secondary, protocol.NewRegister(protocol.RoleSecondary))

	if got := hub.Role(secondary); got != protocol.RoleSecondary {
		t.Errorf("role = %s, want secondary preserved", got)
	}
	// No second snapshot request reaches the primary.
	assertEmpty(t, primary)
	if len(hub.pending) != 0 {
		t.Errorf("pending snapshots = %d, want 0", len(hub.pending))
	}
}

func TestExplicitStateRequestForwardedToPrimary(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	recvType(t, primary, protocol.TypeStateRequest)

	sendFrame(hub, secondary, protocol.NewStateRequest(""))

	reqEnv := recvType(t, primary, protocol.TypeStateRequest)
	req, err := reqEnv.StateRequest()
	if err != nil {
		t.Fatal(err)
	}
	if req.RequestID == "" {
		t.Fatal("forwarded request must carry a relay correlation id")
	}

	// The correlated reply lands back on the asking secondary only.
	sendFrame(hub, primary, protocol.NewStateUpdate([]*panel.Panel{{ID: "p1"}}, req.RequestID))
	env := recvType(t, secondary, protocol.TypeStateUpdate)
	update, err := env.StateUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if len(update.Panels) != 1 {
		t.Errorf("snapshot panels = %d, want 1", len(update.Panels))
	}
}

func TestStateRequestFromNonSecondaryDropped(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	regEnv := recvType(t, primary, protocol.TypeStateRequest)
	regReq, _ := regEnv.StateRequest()
	sendFrame(hub, primary, protocol.NewStateUpdate(nil, regReq.RequestID))
	recvType(t, secondary, protocol.TypeStateUpdate)

	sendFrame(hub, primary, protocol.NewStateRequest(""))

	assertEmpty(t, primary)
	assertEmpty(t, secondary)
	if len(hub.pending) != 0 {
		t.Errorf("pending snapshots = %d, want 0", len(hub.pending))
	}
}

func TestStateRequestWithoutPrimaryWaits(t *testing.T) {
	hub := NewHub()
	secondary := createTestConn(hub)
	register(hub, secondary, protocol.RoleSecondary)

	sendFrame(hub, secondary, protocol.NewStateRequest(""))

	assertEmpty(t, secondary)
	if len(hub.pending) != 0 {
		t.Errorf("pending snapshots = %d, want 0", len(hub.pending))
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	hub := NewHub()
	c := createTestConn(hub)
	register(hub, c, protocol.RoleSecondary)

	hub.handleFrame(frame{conn: c, data: []byte(`{{{not json`)})
	hub.handleFrame(frame{conn: c, data: []byte(`{"type":"panel.explode"}`)})

	if hub.ConnCount() != 1 {
		t.Error("malformed frames must not close the connection")
	}
	if got := hub.Role(c); got != protocol.RoleSecondary {
		t.Errorf("role = %s, want secondary preserved", got)
	}
}

func TestDisconnectClearsPrimaryAndPending(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	secondary := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, secondary, protocol.RoleSecondary)
	recvType(t, primary, protocol.TypeStateRequest)

	hub.removeConn(secondary)
	if len(hub.pending) != 0 {
		t.Error("pending snapshot for a gone secondary must be cleared")
	}

	hub.removeConn(primary)
	if hub.HasPrimary() {
		t.Error("primary must be cleared on disconnect")
	}

	// Idempotent: removing again is a no-op.
	hub.removeConn(primary)
	if hub.ConnCount() != 0 {
		t.Errorf("conn count = %d", hub.ConnCount())
	}
}

func TestSnapshotReplyAfterRequesterGone(t *testing.T) {
	hub := NewHub()
	primary := createTestConn(hub)
	requester := createTestConn(hub)
	register(hub, primary, protocol.RolePrimary)
	register(hub, requester, protocol.RoleSecondary)

	reqEnv := recvType(t, primary, protocol.TypeStateRequest)
	req, _ := reqEnv.StateRequest()

	hub.removeConn(requester)

	// Reply arrives late; it must be dropped, not broadcast.
	sendFrame(hub, primary, protocol.NewStateUpdate(nil, req.RequestID))
	if hub.ConnCount() != 1 {
		t.Errorf("conn count = %d", hub.ConnCount())
	}
}

func TestRunWithContextGracefulShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	c := createTestConn(hub)
	hub.Register <- c
	time.Sleep(20 * time.Millisecond)

	if hub.ConnCount() != 1 {
		t.Fatalf("conn count = %d", hub.ConnCount())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	if hub.ConnCount() != 0 {
		t.Error("connections must be closed on shutdown")
	}
	if _, open := <-c.send; open {
		t.Error("send channel must be closed on shutdown")
	}
}
