// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patchbay-live/patchbay/internal/config"
	"github.com/patchbay-live/patchbay/internal/engine"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/panel"
	"github.com/patchbay-live/patchbay/internal/protocol"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// fakeRelay accepts websocket connections and hands them to the test.
type fakeRelay struct {
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	fr.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fr.conns <- ws
	}))
	t.Cleanup(fr.server.Close)
	return fr
}

func (fr *fakeRelay) url() string {
	return strings.Replace(fr.server.URL, "http", "ws", 1)
}

// accept waits for the next client connection.
func (fr *fakeRelay) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-fr.conns:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no connection arrived")
		return nil
	}
}

// readEnvelope reads and decodes one envelope with a deadline.
func readEnvelope(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("relay read: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("relay decode: %v", err)
	}
	return env
}

func sendEnvelope(t *testing.T, ws *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	if err := ws.WriteJSON(env); err != nil {
		t.Fatalf("relay write: %v", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testClientConfig(url string) config.ClientConfig {
	return config.ClientConfig{
		RelayURL:         url,
		ReconnectBackoff: 50 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}
}

type okEngine struct{}

func (okEngine) Evaluate(_ context.Context, req engine.EvalRequest) (*engine.EvalResult, error) {
	return &engine.EvalResult{PatternID: req.PanelID}, nil
}
func (okEngine) Silence(context.Context, string) error { return nil }

func startStore(t *testing.T) *panel.Store {
	t.Helper()
	store := panel.NewStore(panel.Config{ReservedTitle: "global", MaxCodeSize: 1024}, okEngine{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = store.Run(ctx) }()
	return store
}

func TestRemoteRegistersAndAppliesSnapshot(t *testing.T) {
	fr := newFakeRelay(t)
	remote := NewRemote(testClientConfig(fr.url()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = remote.Serve(ctx) }()

	ws := fr.accept(t)
	env := readEnvelope(t, ws)
	if env.Type != protocol.TypeClientRegister {
		t.Fatalf("first envelope = %s, want client.register", env.Type)
	}
	reg, err := env.Register()
	if err != nil {
		t.Fatal(err)
	}
	if reg.Role != protocol.RoleSecondary {
		t.Errorf("role = %s, want secondary", reg.Role)
	}

	sendEnvelope(t, ws, protocol.NewStateUpdate([]*panel.Panel{
		{ID: "a", Position: 0, Reserved: true},
		{ID: "b", Position: 1, Playing: true},
	}, ""))

	waitFor(t, "snapshot applied", func() bool { return len(remote.Panels()) == 2 })
	got, ok := remote.Panel("b")
	if !ok || !got.Playing {
		t.Errorf("panel b = %+v", got)
	}
}

func TestRemoteAppliesDeltas(t *testing.T) {
	fr := newFakeRelay(t)
	remote := NewRemote(testClientConfig(fr.url()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = remote.Serve(ctx) }()

	ws := fr.accept(t)
	readEnvelope(t, ws) // register

	sendEnvelope(t, ws, protocol.NewPanelState(protocol.TypePanelCreated, &panel.Panel{ID: "a", Position: 0}))
	waitFor(t, "create applied", func() bool { return remote.replica.Len() == 1 })

	sendEnvelope(t, ws, protocol.NewPanelState(protocol.TypePanelUpdated, &panel.Panel{ID: "a", Position: 0, Playing: true, Stale: true}))
	waitFor(t, "update applied", func() bool {
		p, ok := remote.Panel("a")
		return ok && p.Playing && p.Stale
	})

	sendEnvelope(t, ws, protocol.NewDeleted("a"))
	waitFor(t, "delete applied", func() bool { return remote.replica.Len() == 0 })
}

func TestRemoteSendsFireAndForgetCommands(t *testing.T) {
	fr := newFakeRelay(t)
	remote := NewRemote(testClientConfig(fr.url()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = remote.Serve(ctx) }()

	ws := fr.accept(t)
	readEnvelope(t, ws) // register

	remote.Toggle("p1")
	env := readEnvelope(t, ws)
	if env.Type != protocol.TypePanelToggle {
		t.Fatalf("envelope = %s", env.Type)
	}
	cmd, _ := env.Command()
	if cmd.PanelID != "p1" {
		t.Errorf("panelId = %q", cmd.PanelID)
	}

	remote.StopAll()
	env = readEnvelope(t, ws)
	if env.Type != protocol.TypeGlobalStopAll {
		t.Fatalf("envelope = %s", env.Type)
	}
}

func TestRemoteReconnectsWithConstantBackoff(t *testing.T) {
	fr := newFakeRelay(t)
	remote := NewRemote(testClientConfig(fr.url()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = remote.Serve(ctx) }()

	first := fr.accept(t)
	readEnvelope(t, first) // register
	_ = first.Close()

	// A new session arrives and registers again.
	second := fr.accept(t)
	env := readEnvelope(t, second)
	if env.Type != protocol.TypeClientRegister {
		t.Fatalf("reconnect envelope = %s", env.Type)
	}

	// The replica survives across sessions until the next snapshot.
	sendEnvelope(t, second, protocol.NewStateUpdate([]*panel.Panel{{ID: "fresh"}}, ""))
	waitFor(t, "post-reconnect snapshot", func() bool {
		_, ok := remote.Panel("fresh")
		return ok
	})
}

func TestPrimaryRegistersAndPushesSnapshot(t *testing.T) {
	fr := newFakeRelay(t)
	store := startStore(t)
	primary := NewPrimary(testClientConfig(fr.url()), store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = primary.Serve(ctx) }()

	ws := fr.accept(t)
	env := readEnvelope(t, ws)
	reg, err := env.Register()
	if err != nil {
		t.Fatal(err)
	}
	if reg.Role != protocol.RolePrimary {
		t.Errorf("role = %s, want primary", reg.Role)
	}

	env = readEnvelope(t, ws)
	if env.Type != protocol.TypeStateUpdate {
		t.Fatalf("second envelope = %s, want full push", env.Type)
	}
	update, err := env.StateUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if update.RequestID != "" {
		t.Error("initial push must be unsolicited")
	}
	if len(update.Panels) != 1 || !update.Panels[0].Reserved {
		t.Errorf("panels = %+v", update.Panels)
	}
}

func TestPrimaryAnswersStateRequest(t *testing.T) {
	fr := newFakeRelay(t)
	store := startStore(t)
	primary := NewPrimary(testClientConfig(fr.url()), store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = primary.Serve(ctx) }()

	ws := fr.accept(t)
	readEnvelope(t, ws) // register
	readEnvelope(t, ws) // initial push

	sendEnvelope(t, ws, protocol.NewStateRequest("req-42"))

	env := readEnvelope(t, ws)
	if env.Type != protocol.TypeStateUpdate {
		t.Fatalf("envelope = %s", env.Type)
	}
	update, _ := env.StateUpdate()
	if update.RequestID != "req-42" {
		t.Errorf("requestId = %q, want correlation echoed", update.RequestID)
	}
}

func TestPrimaryExecutesCommandsAndForwardsEvents(t *testing.T) {
	fr := newFakeRelay(t)
	store := startStore(t)
	created, err := store.Create(context.Background(), panel.CreateRequest{Title: "drums", Code: "x"})
	if err != nil {
		t.Fatal(err)
	}

	primary := NewPrimary(testClientConfig(fr.url()), store)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = primary.Serve(ctx) }()

	ws := fr.accept(t)
	readEnvelope(t, ws) // register
	readEnvelope(t, ws) // initial push

	sendEnvelope(t, ws, protocol.NewCommand(protocol.TypePanelToggle, created.ID))

	// The authoritative state changes and the mutation is broadcast.
	waitFor(t, "toggle executed", func() bool {
		p, err := store.Get(context.Background(), created.ID)
		return err == nil && p.Playing
	})

	// Events staged before the session (the create) may arrive first;
	// scan until the toggle's broadcast shows up.
	for {
		env := readEnvelope(t, ws)
		if env.Type != protocol.TypePanelUpdated {
			continue
		}
		state, err := env.PanelState()
		if err != nil {
			t.Fatal(err)
		}
		if state.Panel.ID == created.ID && state.Panel.Playing {
			return
		}
	}
}

func TestPrimaryStopAllCommand(t *testing.T) {
	fr := newFakeRelay(t)
	store := startStore(t)
	ctxBg := context.Background()
	a, _ := store.Create(ctxBg, panel.CreateRequest{Title: "a", Code: "x"})
	if _, err := store.Play(ctxBg, a.ID); err != nil {
		t.Fatal(err)
	}

	primary := NewPrimary(testClientConfig(fr.url()), store)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = primary.Serve(ctx) }()

	ws := fr.accept(t)
	readEnvelope(t, ws) // register
	readEnvelope(t, ws) // initial push

	sendEnvelope(t, ws, protocol.NewStopAll())

	waitFor(t, "stop all executed", func() bool {
		p, err := store.Get(ctxBg, a.ID)
		return err == nil && !p.Playing
	})
}
