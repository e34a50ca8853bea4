// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package panel holds the authoritative panel model: the unit of playable
// code plus its lifecycle state (stopped, playing, playing+stale), the
// single-writer store that owns all mutations, and the restricted
// evaluation path for the reserved global panel.
package panel

import (
	"regexp"
	"strings"

	"github.com/patchbay-live/patchbay/internal/engine"
)

// Panel is the unit of control. The same struct is the wire shape used by
// gateway list responses and full-state snapshots; the two must stay
// structurally identical.
type Panel struct {
	// ID is opaque, unique, and stable for the panel's lifetime.
	ID string `json:"id"`

	// Title is the human-readable label.
	Title string `json:"title"`

	// Name is the sanitized cross-panel reference identifier derived
	// from Title, used by the pattern engine's global scope.
	Name string `json:"name"`

	// Code is the current source text as last edited; it may differ from
	// what is audibly playing.
	Code string `json:"code"`

	// Playing reports whether a pattern is currently scheduled.
	Playing bool `json:"playing"`

	// Stale is only meaningful while Playing: true iff Code differs from
	// LastEvaluatedCode. A stopped panel is never stale.
	Stale bool `json:"stale"`

	// LastEvaluatedCode is the exact text that produced the currently
	// playing pattern. Empty when not playing.
	LastEvaluatedCode string `json:"lastEvaluatedCode,omitempty"`

	// PatternID is the identifier the engine actually bound for this
	// panel's pattern. Normally equal to ID, but panel code may request a
	// named registration; silencing always addresses this id.
	PatternID string `json:"patternId,omitempty"`

	// Position orders panels deterministically across clients. It also
	// defines cascade direction: updates re-submit playing panels with a
	// larger Position.
	Position int `json:"position"`

	// Sliders are the control widgets extracted at evaluation time.
	// Transient: cleared on stop.
	Sliders []engine.Slider `json:"sliders,omitempty"`

	// Error is the last engine rejection for this panel, broadcast with
	// its state so every observer sees the same failure. Cleared on the
	// next successful transition.
	Error *engine.Error `json:"error,omitempty"`

	// Reserved marks the single non-deletable global panel.
	Reserved bool `json:"reserved,omitempty"`
}

// Clone returns a deep copy safe to hand outside the store goroutine.
func (p *Panel) Clone() *Panel {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Sliders != nil {
		clone.Sliders = make([]engine.Slider, len(p.Sliders))
		copy(clone.Sliders, p.Sliders)
	}
	if p.Error != nil {
		errCopy := *p.Error
		clone.Error = &errCopy
	}
	return &clone
}

// setStopped applies the stopped state in one place so the invariant
// "stale implies playing" holds at every transition, not just at read time.
func (p *Panel) setStopped() {
	p.Playing = false
	p.Stale = false
	p.LastEvaluatedCode = ""
	p.PatternID = ""
	p.Sliders = nil
	p.Error = nil
}

// setPlaying applies a successful evaluation result.
func (p *Panel) setPlaying(result *engine.EvalResult, evaluated string) {
	p.Playing = true
	p.Stale = p.Code != evaluated
	p.LastEvaluatedCode = evaluated
	p.PatternID = result.PatternID
	p.Sliders = result.Sliders
	p.Error = nil
}

var (
	nameInvalidChars = regexp.MustCompile(`[^a-z0-9_]+`)
	nameLeadingDigit = regexp.MustCompile(`^[0-9]`)
)

// SanitizeName derives the cross-panel reference identifier from a title:
// lowercased, non-identifier runs collapsed to underscores, digit-led names
// prefixed so the result is always a valid identifier.
func SanitizeName(title string) string {
	name := strings.ToLower(strings.TrimSpace(title))
	name = nameInvalidChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "panel"
	}
	if nameLeadingDigit.MatchString(name) {
		name = "p" + name
	}
	return name
}
