// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

import (
	"sort"
	"sync"
)

// Replica is a read-only copy of the panel model maintained from relay
// broadcasts. Remotes render from it and never mutate it directly; all
// intent travels to the authoritative store as commands. Unknown panel
// ids in updates are upserts, since deltas may arrive before the first
// snapshot.
type Replica struct {
	mu     sync.RWMutex
	panels map[string]*Panel
	order  []string
}

// NewReplica creates an empty replica.
func NewReplica() *Replica {
	return &Replica{panels: make(map[string]*Panel)}
}

// ApplySnapshot replaces the entire model with a full-state snapshot.
func (r *Replica) ApplySnapshot(panels []*Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.panels = make(map[string]*Panel, len(panels))
	r.order = r.order[:0]
	for _, p := range panels {
		r.panels[p.ID] = p.Clone()
		r.order = append(r.order, p.ID)
	}
	r.sortLocked()
}

// ApplyPanel upserts one panel from a created or updated broadcast.
func (r *Replica) ApplyPanel(p *Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.panels[p.ID]; !known {
		r.order = append(r.order, p.ID)
	}
	r.panels[p.ID] = p.Clone()
	r.sortLocked()
}

// ApplyDeleted removes one panel. Unknown ids are ignored.
func (r *Replica) ApplyDeleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.panels[id]; !known {
		return
	}
	delete(r.panels, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Panels returns clones of all panels in display order.
func (r *Replica) Panels() []*Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	panels := make([]*Panel, 0, len(r.order))
	for _, id := range r.order {
		panels = append(panels, r.panels[id].Clone())
	}
	return panels
}

// Get returns a clone of one panel.
func (r *Replica) Get(id string) (*Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.panels[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Len returns the panel count.
func (r *Replica) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.panels)
}

// sortLocked keeps display order aligned with panel positions.
func (r *Replica) sortLocked() {
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.panels[r.order[i]].Position < r.panels[r.order[j]].Position
	})
}
