package overlay

import (
	"context"
	"fmt"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// OverlayStatus is an overlay's declaration merged with its live runtime
// view, the shape the HTTP API serves.
type OverlayStatus struct {
	types.Overlay
	Visible  bool    `json:"visible"`
	Opacity  float64 `json:"opacity"`
	Filtered bool    `json:"filtered"`
	Loading  bool    `json:"loading"`
	Error    string  `json:"error,omitempty"`
}

// GroupStatus is a group's declaration merged with its runtime state and
// resolved member list.
type GroupStatus struct {
	types.Group
	Visible bool     `json:"visible"`
	Opacity float64  `json:"opacity"`
	Members []string `json:"members"`
}

// AddBaseStyle registers a base style at runtime. The same field checks run
// as at catalog ingestion; a duplicate id is rejected.
func (e *Engine) AddBaseStyle(b types.BaseStyle) error {
	if b.Strategy == "" {
		b.Strategy = types.StrategyReplace
	}
	problems := config.CheckBaseStyle(b)

	e.mu.Lock()
	if _, dup := e.bases[b.ID]; dup {
		problems = append(problems, fmt.Sprintf("duplicate base style id %q", b.ID))
	}
	if len(problems) > 0 {
		e.mu.Unlock()
		return &config.ValidationError{Problems: problems}
	}
	e.bases[b.ID] = b
	e.baseOrder = append(e.baseOrder, b.ID)
	e.mu.Unlock()
	return nil
}

// AddOverlay registers an overlay at runtime. Programmatic callers use this
// to attach loaders, which cannot come from catalog files.
func (e *Engine) AddOverlay(o types.Overlay) error {
	problems := config.CheckOverlay(o)

	e.mu.Lock()
	if _, dup := e.overlays[o.ID]; dup {
		problems = append(problems, fmt.Sprintf("duplicate overlay id %q", o.ID))
	}
	if o.ForcedBaseID != "" {
		if _, ok := e.bases[o.ForcedBaseID]; !ok {
			problems = append(problems, fmt.Sprintf("overlay %q: forced base style %q not declared", o.ID, o.ForcedBaseID))
		}
	}
	if len(problems) > 0 {
		e.mu.Unlock()
		return &config.ValidationError{Problems: problems}
	}
	copied := o
	e.overlays[o.ID] = &copied
	e.order = append(e.order, o.ID)
	e.mu.Unlock()
	return nil
}

// UpdateOverlay replaces an overlay's declaration in place, keeping its
// runtime state, loader cache and catalog position. An overlay that was
// rendering is re-activated so the new declaration takes effect right away.
func (e *Engine) UpdateOverlay(ctx context.Context, o types.Overlay) error {
	problems := config.CheckOverlay(o)

	e.mu.Lock()
	if _, ok := e.overlays[o.ID]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("overlay %q not registered", o.ID)
	}
	if o.ForcedBaseID != "" {
		if _, ok := e.bases[o.ForcedBaseID]; !ok {
			problems = append(problems, fmt.Sprintf("overlay %q: forced base style %q not declared", o.ID, o.ForcedBaseID))
		}
	}
	if len(problems) > 0 {
		e.mu.Unlock()
		return &config.ValidationError{Problems: problems}
	}
	copied := o
	e.overlays[o.ID] = &copied
	wasCommitted := e.registry.has(o.ID)
	if wasCommitted {
		e.suppressLocked(o.ID)
		e.commitLocked()
	}
	e.mu.Unlock()

	if wasCommitted {
		e.activate(ctx, o.ID, false, false)
	}
	return nil
}

// RemoveOverlay tears the overlay down and forgets it entirely: committed
// layers, transient flags, the loader cache and the persisted runtime entry
// all go. Returns false when the id is unknown.
func (e *Engine) RemoveOverlay(id string) bool {
	e.mu.Lock()
	if _, ok := e.overlays[id]; !ok {
		e.mu.Unlock()
		e.logUnknown("removeOverlay", "overlay", id)
		return false
	}
	had := e.suppressLocked(id)
	delete(e.failed, id)
	delete(e.cache, id)
	delete(e.overlays, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if had {
		e.commitLocked()
	}
	e.mu.Unlock()

	e.store.ForgetOverlay(id)
	return true
}

// UpdateBaseStyle replaces a base style's declaration. When the active base
// changes under the map's feet it is force-reapplied so the new descriptor
// loads.
func (e *Engine) UpdateBaseStyle(b types.BaseStyle) error {
	if b.Strategy == "" {
		b.Strategy = types.StrategyReplace
	}
	problems := config.CheckBaseStyle(b)

	e.mu.Lock()
	old, ok := e.bases[b.ID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("base style %q not registered", b.ID)
	}
	if len(problems) > 0 {
		e.mu.Unlock()
		return &config.ValidationError{Problems: problems}
	}
	e.bases[b.ID] = b
	e.mu.Unlock()

	if b.ID == e.store.ActiveBase() && old.Style != b.Style {
		e.ApplyBase(b.ID)
	}
	return nil
}

// RemoveBaseStyle drops a base style. Removing the active base switches to
// the first remaining one, if any. Returns false when the id is unknown.
func (e *Engine) RemoveBaseStyle(id string) bool {
	e.mu.Lock()
	if _, ok := e.bases[id]; !ok {
		e.mu.Unlock()
		e.logUnknown("removeBaseStyle", "base", id)
		return false
	}
	delete(e.bases, id)
	for i, bid := range e.baseOrder {
		if bid == id {
			e.baseOrder = append(e.baseOrder[:i], e.baseOrder[i+1:]...)
			break
		}
	}
	var next string
	if len(e.baseOrder) > 0 {
		next = e.baseOrder[0]
	}
	wasActive := e.store.ActiveBase() == id
	e.mu.Unlock()

	if wasActive && next != "" {
		e.SwitchBase(next)
	}
	return true
}

// SetGroups replaces the explicit group declarations. Implicit groups keep
// materializing from member overlays regardless.
func (e *Engine) SetGroups(groups []types.Group) {
	e.mu.Lock()
	e.groupLabels = make(map[string]string, len(groups))
	e.groupOrder = e.groupOrder[:0]
	for _, g := range groups {
		if _, dup := e.groupLabels[g.ID]; !dup {
			e.groupOrder = append(e.groupOrder, g.ID)
		}
		e.groupLabels[g.ID] = g.Label
	}
	e.mu.Unlock()
}

// Overlay returns a copy of the overlay's current declaration, including
// loader-merged fields.
func (e *Engine) Overlay(id string) (types.Overlay, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.overlays[id]
	if !ok {
		return types.Overlay{}, false
	}
	return *o, true
}

// Overlays returns every overlay declaration in catalog order.
func (e *Engine) Overlays() []types.Overlay {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Overlay, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.overlays[id])
	}
	return out
}

// BaseStyles returns every base style in catalog order.
func (e *Engine) BaseStyles() []types.BaseStyle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.BaseStyle, 0, len(e.baseOrder))
	for _, id := range e.baseOrder {
		out = append(out, e.bases[id])
	}
	return out
}

// Groups returns every known group, explicit and implicit, in first-seen
// order. Implicit groups fall back to their id as label.
func (e *Engine) Groups() []types.Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.groupIDsLocked()
	out := make([]types.Group, 0, len(ids))
	for _, id := range ids {
		label := e.groupLabels[id]
		if label == "" {
			label = id
		}
		out = append(out, types.Group{ID: id, Label: label})
	}
	return out
}

// Status returns one overlay's declaration plus runtime view.
func (e *Engine) Status(id string) (OverlayStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.overlays[id]
	if !ok {
		return OverlayStatus{}, false
	}
	return e.statusLocked(o), true
}

// Statuses returns the runtime view of every overlay in catalog order.
func (e *Engine) Statuses() []OverlayStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]OverlayStatus, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.statusLocked(e.overlays[id]))
	}
	return out
}

func (e *Engine) statusLocked(o *types.Overlay) OverlayStatus {
	st, ok := e.store.OverlayState(o.ID)
	if !ok {
		st = types.OverlayState{Visible: o.DefaultVisible, Opacity: types.ClampOpacity(o.DefaultOpacity)}
	}
	return OverlayStatus{
		Overlay:  *o,
		Visible:  st.Visible,
		Opacity:  st.Opacity,
		Filtered: e.filtered[o.ID],
		Loading:  e.loading[o.ID],
		Error:    e.failed[o.ID],
	}
}

// GroupStatuses returns the runtime view of every known group.
func (e *Engine) GroupStatuses() []GroupStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.groupIDsLocked()
	out := make([]GroupStatus, 0, len(ids))
	for _, id := range ids {
		label := e.groupLabels[id]
		if label == "" {
			label = id
		}
		gs, ok := e.store.GroupState(id)
		if !ok {
			gs = types.GroupState{Visible: true, Opacity: 1}
		}
		members := e.membersLocked(id)
		if members == nil {
			members = []string{}
		}
		out = append(out, GroupStatus{
			Group:   types.Group{ID: id, Label: label},
			Visible: gs.Visible,
			Opacity: gs.Opacity,
			Members: members,
		})
	}
	return out
}
