package overlay

import (
	"context"

	"github.com/drecchia/maplibre-layerlibre/internal/event"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// SetGroupVisible toggles a group's master switch.
//
// Turning a group on for the first time, when no member carries a visible
// flag, switches every member on. Afterwards the toggle restores the last
// selection: members keep their individual flags while the group is off, so
// turning it back on re-activates exactly the members that were on before.
// Turning the group off suppresses member rendering without touching those
// flags. Returns false only when the group id is unknown.
func (e *Engine) SetGroupVisible(ctx context.Context, id string, visible bool) bool {
	e.mu.Lock()
	members := e.membersLocked(id)
	if len(members) == 0 && !e.groupDeclaredLocked(id) {
		e.mu.Unlock()
		e.logUnknown("setGroupVisible", "group", id)
		return false
	}

	_, existed := e.store.GroupState(id)
	// An untouched group suppresses nobody, so its seed is visible. The
	// first explicit turn-off then registers as a real change.
	e.store.InitGroup(id, types.GroupState{Visible: true, Opacity: 1})
	e.store.SetGroupVisible(id, visible)
	if !existed && visible {
		// Seeding left the flag already on and the store stayed quiet, so
		// announce the first explicit turn-on ourselves.
		e.publishGroupChange(id)
	}

	if !visible {
		var touched []string
		for _, m := range members {
			if e.suppressLocked(m) {
				touched = append(touched, m)
			}
		}
		if len(touched) > 0 {
			e.commitLocked()
		}
		e.mu.Unlock()

		for _, m := range touched {
			e.publishOverlayChange(m)
		}
		return true
	}

	var selected []string
	for _, m := range members {
		if st, ok := e.store.OverlayState(m); ok && st.Visible {
			selected = append(selected, m)
		}
	}
	restoring := len(selected) > 0
	toActivate := members
	if restoring {
		toActivate = selected
	}
	e.mu.Unlock()

	for _, m := range toActivate {
		e.activate(ctx, m, false, false)
		if restoring {
			// The member's flag never changed, so the store stayed quiet;
			// announce the restored rendering ourselves.
			e.publishOverlayChange(m)
		}
	}
	return true
}

// SetGroupOpacity sets the group's master opacity and fans it out to every
// member overlay. Returns false only when the group id is unknown.
func (e *Engine) SetGroupOpacity(id string, opacity float64) bool {
	e.mu.Lock()
	members := e.membersLocked(id)
	if len(members) == 0 && !e.groupDeclaredLocked(id) {
		e.mu.Unlock()
		e.logUnknown("setGroupOpacity", "group", id)
		return false
	}

	e.store.InitGroup(id, types.GroupState{Visible: true, Opacity: 1})
	e.store.SetGroupOpacity(id, opacity)
	gs, _ := e.store.GroupState(id)

	dirty := false
	for _, m := range members {
		e.store.SetOverlayOpacity(m, gs.Opacity)
		if e.registry.has(m) {
			st, _ := e.store.OverlayState(m)
			e.registry.reopacity(m, st.Opacity)
			dirty = true
		}
	}
	if dirty {
		e.commitLocked()
	}
	e.mu.Unlock()
	return true
}

func (e *Engine) publishOverlayChange(id string) {
	st, ok := e.store.OverlayState(id)
	if !ok {
		return
	}
	e.bus.Publish(event.Event{Topic: event.TopicOverlayChange, Payload: event.OverlayChangeData{
		ID: id, Visible: st.Visible, Opacity: st.Opacity,
	}})
}

func (e *Engine) publishGroupChange(id string) {
	gs, ok := e.store.GroupState(id)
	if !ok {
		return
	}
	e.bus.Publish(event.Event{Topic: event.TopicGroupChange, Payload: event.GroupChangeData{
		ID: id, Visible: gs.Visible,
	}})
}

// membersLocked returns the group's member overlay ids in catalog order.
func (e *Engine) membersLocked(groupID string) []string {
	var members []string
	for _, id := range e.order {
		if e.overlays[id].Group == groupID {
			members = append(members, id)
		}
	}
	return members
}

func (e *Engine) groupDeclaredLocked(id string) bool {
	_, ok := e.groupLabels[id]
	return ok
}

// groupIDsLocked returns every known group id: explicit declarations plus
// groups materialized implicitly by member overlays, in first-seen order.
func (e *Engine) groupIDsLocked() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range e.order {
		g := e.overlays[id].Group
		if g != "" && !seen[g] {
			seen[g] = true
			ids = append(ids, g)
		}
	}
	for _, g := range e.groupOrder {
		if !seen[g] {
			seen[g] = true
			ids = append(ids, g)
		}
	}
	return ids
}
