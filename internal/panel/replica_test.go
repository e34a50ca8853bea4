// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

import "testing"

func TestReplicaSnapshotReplaces(t *testing.T) {
	r := NewReplica()
	r.ApplyPanel(&Panel{ID: "stale", Position: 0})

	r.ApplySnapshot([]*Panel{
		{ID: "a", Position: 0},
		{ID: "b", Position: 1},
	})

	panels := r.Panels()
	if len(panels) != 2 {
		t.Fatalf("len = %d, want snapshot to replace prior state", len(panels))
	}
	if panels[0].ID != "a" || panels[1].ID != "b" {
		t.Errorf("order = %s, %s", panels[0].ID, panels[1].ID)
	}
	if _, ok := r.Get("stale"); ok {
		t.Error("pre-snapshot panel must be gone")
	}
}

func TestReplicaUpsertOrdersByPosition(t *testing.T) {
	r := NewReplica()
	r.ApplyPanel(&Panel{ID: "b", Position: 1})
	r.ApplyPanel(&Panel{ID: "a", Position: 0})

	panels := r.Panels()
	if panels[0].ID != "a" || panels[1].ID != "b" {
		t.Errorf("order = %s, %s, want position order", panels[0].ID, panels[1].ID)
	}

	// Update in place keeps a single entry.
	r.ApplyPanel(&Panel{ID: "a", Position: 0, Playing: true})
	if r.Len() != 2 {
		t.Errorf("len = %d after in-place update", r.Len())
	}
	got, _ := r.Get("a")
	if !got.Playing {
		t.Error("update not applied")
	}
}

func TestReplicaDeleteIgnoresUnknown(t *testing.T) {
	r := NewReplica()
	r.ApplyPanel(&Panel{ID: "a"})

	r.ApplyDeleted("nope")
	r.ApplyDeleted("a")
	r.ApplyDeleted("a")

	if r.Len() != 0 {
		t.Errorf("len = %d", r.Len())
	}
}

func TestReplicaClonesOnReadAndWrite(t *testing.T) {
	r := NewReplica()
	src := &Panel{ID: "a", Code: "x"}
	r.ApplyPanel(src)

	// Mutating the source after apply must not reach the replica.
	src.Code = "tampered"
	got, _ := r.Get("a")
	if got.Code != "x" {
		t.Error("replica shares memory with the applied panel")
	}

	// Mutating a read result must not reach the replica either.
	got.Code = "tampered"
	again, _ := r.Get("a")
	if again.Code != "x" {
		t.Error("replica shares memory with read results")
	}
}
