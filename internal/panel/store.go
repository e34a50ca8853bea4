// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/patchbay-live/patchbay/internal/engine"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/metrics"
)

// Config holds store settings.
type Config struct {
	// ReservedTitle titles the immortal global panel created at startup.
	ReservedTitle string

	// MaxCodeSize bounds accepted pattern source, in bytes.
	MaxCodeSize int
}

// Store owns the canonical panel model. Every mutation, whether it
// originates from the gateway, an inbound relay command, or a local edit,
// is a closure executed by the single goroutine inside Run. Two
// near-simultaneous toggles therefore cannot race; an engine submission in
// progress serializes everything queued behind it, so a pause arriving
// during a play is applied once the play resolves.
type Store struct {
	cfg    Config
	engine engine.Engine

	commands chan command
	events   chan Event
	stopped  chan struct{}
	stopOnce sync.Once

	// Owned exclusively by the Run goroutine.
	panels     map[string]*Panel
	order      []string
	deleted    map[string]struct{}
	reservedID string
	pending    []Event
	runCtx     context.Context
}

// CreateRequest creates a panel. ID is optional; when empty a new id is
// assigned. Code defaults to empty, playback to stopped.
type CreateRequest struct {
	ID    string
	Title string
	Code  string
}

// NewStore builds a store containing only the reserved panel.
func NewStore(cfg Config, eng engine.Engine) *Store {
	if cfg.ReservedTitle == "" {
		cfg.ReservedTitle = "global"
	}
	if cfg.MaxCodeSize <= 0 {
		cfg.MaxCodeSize = 64 * 1024
	}

	s := &Store{
		cfg:      cfg,
		engine:   eng,
		commands: make(chan command, 64),
		events:   make(chan Event, 256),
		stopped:  make(chan struct{}),
		panels:   make(map[string]*Panel),
		deleted:  make(map[string]struct{}),
	}

	reserved := &Panel{
		ID:       uuid.New().String(),
		Title:    cfg.ReservedTitle,
		Name:     SanitizeName(cfg.ReservedTitle),
		Reserved: true,
	}
	s.reservedID = reserved.ID
	s.panels[reserved.ID] = reserved
	s.order = []string{reserved.ID}

	return s
}

// ReservedID returns the id of the immortal global panel.
func (s *Store) ReservedID() string { return s.reservedID }

// Events returns the stream of completed mutations. The channel is never
// closed; consumers stop via their own context.
func (s *Store) Events() <-chan Event { return s.events }

// command pairs a queued mutation with its completion signal so callers
// can distinguish "ran" from "abandoned at shutdown".
type command struct {
	fn   func()
	done chan struct{}
}

// Run consumes the command queue until ctx is canceled. It must be running
// for any store method to complete. Returns ctx.Err() on shutdown. Once
// Run exits the store is permanently stopped and every pending or future
// call fails with ErrStoreStopped.
func (s *Store) Run(ctx context.Context) error {
	defer s.stopOnce.Do(func() { close(s.stopped) })
	s.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "panel-store").Msg("panel store stopped")
			return ctx.Err()
		case cmd := <-s.commands:
			cmd.fn()
			close(cmd.done)
			s.flushEvents()
			s.updateGauges()
		}
	}
}

// do enqueues fn onto the command loop and waits for it to complete.
// Completion is re-checked before reporting cancellation or shutdown, so
// a command that already ran is never reported as failed. A caller whose
// context expires while its command is still queued gets ctx.Err(); the
// command may still execute later, and its event reaches subscribers.
func (s *Store) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ErrStoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-s.stopped:
		select {
		case <-cmd.done:
			return nil
		default:
		}
		return ErrStoreStopped
	case <-ctx.Done():
		select {
		case <-cmd.done:
			return nil
		default:
		}
		return ctx.Err()
	}
}

// Create adds a panel. Caller-supplied ids must be fresh for the session.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Panel, error) {
	var (
		created *Panel
		opErr   error
	)
	err := s.do(ctx, func() {
		if len(req.Code) > s.cfg.MaxCodeSize {
			opErr = ErrCodeTooLarge
			return
		}

		id := req.ID
		if id == "" {
			id = uuid.New().String()
		} else if _, used := s.deleted[id]; used {
			opErr = ErrIDConflict
			return
		} else if _, exists := s.panels[id]; exists {
			opErr = ErrIDConflict
			return
		}

		title := req.Title
		if title == "" {
			title = fmt.Sprintf("Panel %d", len(s.order))
		}

		p := &Panel{
			ID:       id,
			Title:    title,
			Name:     SanitizeName(title),
			Code:     req.Code,
			Position: len(s.order),
		}
		s.panels[id] = p
		s.order = append(s.order, id)

		created = p.Clone()
		s.queueEvent(Event{Type: EventPanelCreated, Panel: p.Clone()})
		logging.Info().Str("panel_id", id).Str("title", title).Msg("panel created")
	})
	if err != nil {
		return nil, err
	}
	return created, opErr
}

// Get returns a clone of one panel.
func (s *Store) Get(ctx context.Context, id string) (*Panel, error) {
	var (
		found *Panel
		opErr error
	)
	err := s.do(ctx, func() {
		p, ok := s.panels[id]
		if !ok {
			opErr = ErrNotFound
			return
		}
		found = p.Clone()
	})
	if err != nil {
		return nil, err
	}
	return found, opErr
}

// List returns clones of all panels in display order. This is also the
// full-state snapshot payload; the two are the same structure on purpose.
func (s *Store) List(ctx context.Context) ([]*Panel, error) {
	var panels []*Panel
	err := s.do(ctx, func() {
		panels = s.snapshot()
	})
	if err != nil {
		return nil, err
	}
	return panels, nil
}

// UpdateCode replaces a panel's source text. While the panel is playing and
// autoPlay is false, staleness is recomputed synchronously with the edit.
// With autoPlay, the panel transitions through play/update immediately.
func (s *Store) UpdateCode(ctx context.Context, id, code string, autoPlay bool) (*Panel, error) {
	var (
		updated *Panel
		opErr   error
	)
	err := s.do(ctx, func() {
		if len(code) > s.cfg.MaxCodeSize {
			opErr = ErrCodeTooLarge
			return
		}
		p, ok := s.panels[id]
		if !ok {
			opErr = ErrNotFound
			return
		}

		p.Code = code
		if p.Playing {
			p.Stale = p.Code != p.LastEvaluatedCode
		}

		if autoPlay {
			opErr = s.play(p)
		} else {
			s.queueEvent(Event{Type: EventPanelUpdated, Panel: p.Clone()})
		}
		updated = p.Clone()
	})
	if err != nil {
		return nil, err
	}
	return updated, opErr
}

// Play starts (or, for a stale playing panel, updates) playback. Playing a
// panel that is already playing and not stale is a no-op with no engine
// submission.
func (s *Store) Play(ctx context.Context, id string) (*Panel, error) {
	return s.playback(ctx, id, "play")
}

// Pause stops playback. Pausing a stopped panel is a no-op.
func (s *Store) Pause(ctx context.Context, id string) (*Panel, error) {
	return s.playback(ctx, id, "pause")
}

// Toggle flips playback based on the authoritative state, never on the
// caller's assumed state.
func (s *Store) Toggle(ctx context.Context, id string) (*Panel, error) {
	return s.playback(ctx, id, "toggle")
}

// playback dispatches one idempotent playback action.
func (s *Store) playback(ctx context.Context, id, action string) (*Panel, error) {
	var (
		result *Panel
		opErr  error
	)
	err := s.do(ctx, func() {
		p, ok := s.panels[id]
		if !ok {
			opErr = ErrNotFound
			return
		}

		switch action {
		case "play":
			opErr = s.play(p)
		case "pause":
			s.pause(p)
		case "toggle":
			if p.Playing {
				s.pause(p)
			} else {
				opErr = s.play(p)
			}
		}
		result = p.Clone()
	})
	if err != nil {
		return nil, err
	}
	return result, opErr
}

// Delete removes a panel, pausing it first if playing. The reserved panel
// always fails with ErrProtectedPanel regardless of playback state.
func (s *Store) Delete(ctx context.Context, id string) error {
	var opErr error
	err := s.do(ctx, func() {
		p, ok := s.panels[id]
		if !ok {
			opErr = ErrNotFound
			return
		}
		if p.Reserved {
			opErr = ErrProtectedPanel
			return
		}

		if p.Playing {
			s.pause(p)
		}

		delete(s.panels, id)
		s.deleted[id] = struct{}{}
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.renumber()

		s.queueEvent(Event{Type: EventPanelDeleted, PanelID: id})
		logging.Info().Str("panel_id", id).Msg("panel deleted")
	})
	if err != nil {
		return err
	}
	return opErr
}

// StopAll pauses every playing panel and emits one full-state broadcast
// after the sweep. Idempotent: a stopped board stays stopped.
func (s *Store) StopAll(ctx context.Context) ([]*Panel, error) {
	var panels []*Panel
	err := s.do(ctx, func() {
		for _, id := range s.order {
			if p := s.panels[id]; p.Playing {
				s.pause(p)
			}
		}
		panels = s.snapshot()
		s.queueEvent(Event{Type: EventStateUpdate, Panels: s.snapshot()})
	})
	if err != nil {
		return nil, err
	}
	return panels, nil
}

// play runs inside the command loop. It implements both the Play and the
// Update transition: the mechanics are identical, only the failure
// handling differs by whether the panel was already playing.
func (s *Store) play(p *Panel) error {
	if p.Playing && !p.Stale {
		return nil
	}

	wasPlaying := p.Playing
	code := p.Code

	var (
		result *engine.EvalResult
		err    error
	)
	if p.Reserved {
		result, err = s.evaluateReserved(p, code)
	} else {
		result, err = s.engine.Evaluate(s.runCtx, engine.EvalRequest{
			PanelID: p.ID, Name: p.Name, Code: code,
		})
	}

	if err != nil {
		// Failed play leaves the panel stopped; failed update leaves it
		// playing+stale with the old pattern still audible. Either way the
		// rejection is attached so every observer sees the same failure.
		p.Error = asEngineError(p.ID, err)
		s.queueEvent(Event{Type: EventPanelUpdated, Panel: p.Clone()})
		logging.Warn().Str("panel_id", p.ID).Err(err).Msg("engine rejected panel code")
		return err
	}

	p.setPlaying(result, code)
	s.queueEvent(Event{Type: EventPanelUpdated, Panel: p.Clone()})
	logging.Info().Str("panel_id", p.ID).Str("pattern_id", p.PatternID).Bool("update", wasPlaying).Msg("panel playing")

	if wasPlaying {
		s.cascadeFrom(p)
	}
	return nil
}

// evaluateReserved runs the reserved panel through restricted evaluation:
// declarations are extracted by the scoped grammar, and only the remainder
// (if any) goes to the engine.
func (s *Store) evaluateReserved(p *Panel, code string) (*engine.EvalResult, error) {
	decls := ExtractDeclarations(code)

	sliders := make([]engine.Slider, 0, len(decls.Sliders))
	for _, d := range decls.Sliders {
		sliders = append(sliders, engine.Slider{
			SliderID: d.ID, Label: d.ID, Value: d.Value, Min: d.Min, Max: d.Max,
		})
	}

	if decls.IsDeclarationsOnly() {
		return &engine.EvalResult{PatternID: p.ID, Sliders: sliders}, nil
	}

	result, err := s.engine.Evaluate(s.runCtx, engine.EvalRequest{
		PanelID: p.ID, Name: p.Name, Code: decls.Rest,
	})
	if err != nil {
		return nil, err
	}
	result.Sliders = append(sliders, result.Sliders...)
	return result, nil
}

// pause runs inside the command loop. Silence failures are logged but do
// not block the transition: the model follows operator intent.
func (s *Store) pause(p *Panel) {
	if !p.Playing {
		return
	}

	if err := s.engine.Silence(s.runCtx, p.PatternID); err != nil {
		logging.Warn().Str("panel_id", p.ID).Str("pattern_id", p.PatternID).Err(err).Msg("failed to silence pattern")
	}

	p.setStopped()
	s.queueEvent(Event{Type: EventPanelUpdated, Panel: p.Clone()})
	logging.Info().Str("panel_id", p.ID).Msg("panel stopped")
}

// cascadeFrom re-submits every playing panel positioned after p, in display
// order, so downstream references pick up p's new pattern. The cascade is
// one-directional and sequential; a failure attaches to the failing panel
// and never rolls back p.
func (s *Store) cascadeFrom(p *Panel) {
	past := false
	for _, id := range s.order {
		if id == p.ID {
			past = true
			continue
		}
		if !past {
			continue
		}
		q := s.panels[id]
		if !q.Playing {
			continue
		}

		// Re-submit what is audible, not unheard edits: staleness is
		// preserved across a cascade.
		result, err := s.engine.Evaluate(s.runCtx, engine.EvalRequest{
			PanelID: q.ID, Name: q.Name, Code: q.LastEvaluatedCode,
		})
		metrics.CascadeReevaluations.Inc()
		if err != nil {
			q.Error = asEngineError(q.ID, err)
			logging.Warn().Str("panel_id", q.ID).Err(err).Msg("cascade re-evaluation failed")
		} else {
			q.PatternID = result.PatternID
			q.Sliders = result.Sliders
			q.Error = nil
		}
		s.queueEvent(Event{Type: EventPanelUpdated, Panel: q.Clone()})
	}
}

// snapshot clones all panels in display order.
func (s *Store) snapshot() []*Panel {
	panels := make([]*Panel, 0, len(s.order))
	for _, id := range s.order {
		panels = append(panels, s.panels[id].Clone())
	}
	return panels
}

// renumber realigns Position with display order after a removal.
func (s *Store) renumber() {
	for i, id := range s.order {
		s.panels[id].Position = i
	}
}

// queueEvent stages an event for emission after the current command.
func (s *Store) queueEvent(ev Event) {
	s.pending = append(s.pending, ev)
}

// flushEvents emits staged events in order. Emission is non-blocking; a
// full channel drops the event with a warning, and reconnecting observers
// recover through full-state snapshots rather than replayed deltas.
func (s *Store) flushEvents() {
	for _, ev := range s.pending {
		select {
		case s.events <- ev:
		default:
			logging.Warn().Str("event_type", string(ev.Type)).Msg("event channel full, dropping event")
		}
	}
	s.pending = s.pending[:0]
}

// updateGauges refreshes panel gauges after each command.
func (s *Store) updateGauges() {
	playing := 0
	for _, p := range s.panels {
		if p.Playing {
			playing++
		}
	}
	metrics.PanelsTotal.Set(float64(len(s.panels)))
	metrics.PanelsPlaying.Set(float64(playing))
}

// asEngineError normalizes any submission failure into the structured
// rejection attached to panel state. Transport failures carry the raw
// message; structured rejections pass through.
func asEngineError(panelID string, err error) *engine.Error {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return engErr
	}
	return &engine.Error{PanelID: panelID, Message: err.Error()}
}
