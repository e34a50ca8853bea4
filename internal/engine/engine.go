// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package engine defines the contract with the external pattern-evaluation
// engine: submit source text, receive a playable handle or a structured
// rejection. The engine itself (pattern-language semantics, audio synthesis)
// lives outside this repository.
package engine

import (
	"context"
	"fmt"
)

// Slider describes one control widget the engine extracted from pattern
// source at evaluation time.
type Slider struct {
	SliderID string  `json:"sliderId"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// EvalRequest is a single code submission for one panel.
type EvalRequest struct {
	// PanelID identifies the submitting panel.
	PanelID string `json:"panelId"`

	// Name is the sanitized cross-panel reference name derived from the
	// panel title; other panels address this pattern by it.
	Name string `json:"name"`

	// Code is the source text to evaluate.
	Code string `json:"code"`
}

// EvalResult is a successful evaluation.
type EvalResult struct {
	// PatternID is the identifier the engine actually bound. Normally the
	// panel id, but source code may request a named registration; stop and
	// pause must always address this id, never assume it equals PanelID.
	PatternID string `json:"patternId"`

	// Sliders extracted from the submitted code, in source order.
	Sliders []Slider `json:"sliders,omitempty"`
}

// Error is a structured rejection from the engine (syntax or evaluation
// failure). It is attached to the affected panel and broadcast with its
// state so every observer sees the same failure.
type Error struct {
	PanelID string `json:"panelId"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("engine rejected panel %s at %d:%d: %s", e.PanelID, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("engine rejected panel %s: %s", e.PanelID, e.Message)
}

// Engine evaluates pattern code and silences playing patterns.
//
// Evaluate returns (*EvalResult, nil) on success, (nil, *Error) when the
// engine rejects the code, and (nil, err) for transport failures. There is
// no cancellation of an in-flight evaluation beyond the context deadline;
// callers serialize submissions per panel.
type Engine interface {
	Evaluate(ctx context.Context, req EvalRequest) (*EvalResult, error)
	Silence(ctx context.Context, patternID string) error
}
