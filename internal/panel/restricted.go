// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

import (
	"regexp"
	"strconv"
	"strings"
)

// Restricted evaluation for the reserved panel.
//
// The reserved panel's declarations are extracted with an explicitly scoped
// grammar instead of the full pattern engine: full-language evaluation of
// this panel's code blocks indefinitely outside the engine's expected call
// context. The grammar covers exactly two forms:
//
//	slider(id, value)
//	slider(id, value, min, max)
//	let name = <expression>
//
// Anything else in the reserved panel goes through the same engine path as
// ordinary panels. There is no partial interpretation of unknown content.

var (
	// slider("gain", 0.5) or slider(gain, 0.5, 0, 1); quotes optional.
	sliderDeclRe = regexp.MustCompile(
		`(?m)^\s*slider\(\s*["']?([A-Za-z_][A-Za-z0-9_]*)["']?\s*,\s*(-?\d+(?:\.\d+)?)\s*(?:,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*)?\)\s*;?\s*$`)

	// let tempo = 120
	globalDeclRe = regexp.MustCompile(
		`(?m)^\s*let\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+?)\s*;?\s*$`)
)

// Declarations is the result of restricted evaluation.
type Declarations struct {
	// Sliders declared in source order.
	Sliders []SliderDecl

	// Globals maps declared variable names to their raw right-hand sides.
	Globals map[string]string

	// Rest is the source text with all recognized declarations removed.
	// Non-blank Rest must be submitted through the full engine path.
	Rest string
}

// SliderDecl is one parsed slider declaration.
type SliderDecl struct {
	ID    string
	Value float64
	Min   float64
	Max   float64
}

// ExtractDeclarations runs the restricted grammar over the reserved panel's
// code. It never fails: unrecognized lines are passed through in Rest.
func ExtractDeclarations(code string) Declarations {
	decls := Declarations{Globals: make(map[string]string)}
	var rest []string

	for _, line := range strings.Split(code, "\n") {
		if m := sliderDeclRe.FindStringSubmatch(line); m != nil {
			decl := SliderDecl{ID: m[1], Min: 0, Max: 1}
			decl.Value, _ = strconv.ParseFloat(m[2], 64)
			if m[3] != "" {
				decl.Min, _ = strconv.ParseFloat(m[3], 64)
				decl.Max, _ = strconv.ParseFloat(m[4], 64)
			}
			decls.Sliders = append(decls.Sliders, decl)
			continue
		}
		if m := globalDeclRe.FindStringSubmatch(line); m != nil {
			decls.Globals[m[1]] = m[2]
			continue
		}
		rest = append(rest, line)
	}

	decls.Rest = strings.Join(rest, "\n")
	return decls
}

// IsDeclarationsOnly reports whether the code consists entirely of
// restricted-grammar declarations (plus blank lines and // comments).
// Such code never reaches the engine.
func (d Declarations) IsDeclarationsOnly() bool {
	for _, line := range strings.Split(d.Rest, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return false
	}
	return true
}
