// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

import (
	"testing"

	"github.com/patchbay-live/patchbay/internal/engine"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Drums", "drums"},
		{"My Bass Line", "my_bass_line"},
		{"808 kick", "p808_kick"},
		{"  spaced  ", "spaced"},
		{"weird!!chars##", "weird_chars"},
		{"___", "panel"},
		{"", "panel"},
		{"already_fine", "already_fine"},
		{"Ünïcödé", "n_c_d"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := SanitizeName(tt.title); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Panel{
		ID:      "p1",
		Sliders: []engine.Slider{{SliderID: "gain", Value: 0.5}},
		Error:   &engine.Error{PanelID: "p1", Message: "boom"},
	}

	clone := orig.Clone()
	clone.Sliders[0].Value = 0.9
	clone.Error.Message = "changed"

	if orig.Sliders[0].Value != 0.5 {
		t.Error("slider mutation leaked into the original")
	}
	if orig.Error.Message != "boom" {
		t.Error("error mutation leaked into the original")
	}

	var nilPanel *Panel
	if nilPanel.Clone() != nil {
		t.Error("cloning nil should return nil")
	}
}

func TestStopClearsPlaybackFields(t *testing.T) {
	p := &Panel{
		ID:                "p1",
		Code:              "Y",
		Playing:           true,
		Stale:             true,
		LastEvaluatedCode: "X",
		PatternID:         "p1",
		Sliders:           []engine.Slider{{SliderID: "gain"}},
		Error:             &engine.Error{Message: "old"},
	}
	p.setStopped()

	if p.Playing || p.Stale {
		t.Error("setStopped must clear playing and stale")
	}
	if p.LastEvaluatedCode != "" || p.PatternID != "" {
		t.Error("setStopped must clear evaluation fields")
	}
	if p.Sliders != nil || p.Error != nil {
		t.Error("setStopped must clear transient fields")
	}
	if p.Code != "Y" {
		t.Error("setStopped must preserve edited code")
	}
}

func TestSetPlayingComputesStaleness(t *testing.T) {
	p := &Panel{ID: "p1", Code: "Y"}
	p.setPlaying(&engine.EvalResult{PatternID: "p1"}, "Y")
	if p.Stale {
		t.Error("code matching evaluated text must not be stale")
	}

	p.Code = "Z"
	p.setPlaying(&engine.EvalResult{PatternID: "p1"}, "Y")
	if !p.Stale {
		t.Error("code differing from evaluated text must be stale")
	}
}
