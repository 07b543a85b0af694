package control

import (
	"context"
	"errors"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
	"github.com/drecchia/maplibre-layerlibre/internal/event"
	"github.com/drecchia/maplibre-layerlibre/internal/overlay"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// Activate shows an overlay as a user action: viewport directives and
// forced base styles apply.
func (c *Control) Activate(ctx context.Context, id string) bool {
	return c.engine.Activate(ctx, id, true)
}

// Deactivate hides an overlay.
func (c *Control) Deactivate(id string) bool {
	return c.engine.Deactivate(id)
}

// SetOpacity adjusts an overlay's opacity, clamped to [0,1].
func (c *Control) SetOpacity(id string, opacity float64) bool {
	return c.engine.SetOpacity(id, opacity)
}

// SwitchBase swaps the active base style.
func (c *Control) SwitchBase(id string) bool {
	return c.engine.SwitchBase(id)
}

// SetGroupVisible toggles a group's master switch.
func (c *Control) SetGroupVisible(ctx context.Context, id string, visible bool) bool {
	return c.engine.SetGroupVisible(ctx, id, visible)
}

// SetGroupOpacity sets a group's master opacity and fans it out.
func (c *Control) SetGroupOpacity(id string, opacity float64) bool {
	return c.engine.SetGroupOpacity(id, opacity)
}

// ReevaluateZoom re-applies zoom ranges against the current camera.
func (c *Control) ReevaluateZoom(ctx context.Context) {
	c.engine.ReevaluateZoom(ctx)
}

// ResolveTooltip answers a feature pick.
func (c *Control) ResolveTooltip(pick types.Pick) *types.TooltipContent {
	return c.engine.ResolveTooltip(pick)
}

// AddOverlay registers an overlay at runtime, typically one carrying a
// loader callback.
func (c *Control) AddOverlay(o types.Overlay) error {
	return c.engine.AddOverlay(o)
}

// UpdateOverlay replaces an overlay's declaration in place.
func (c *Control) UpdateOverlay(ctx context.Context, o types.Overlay) error {
	return c.engine.UpdateOverlay(ctx, o)
}

// RemoveOverlay drops an overlay and its runtime traces.
func (c *Control) RemoveOverlay(id string) bool {
	return c.engine.RemoveOverlay(id)
}

// AddBaseStyle registers a base style at runtime.
func (c *Control) AddBaseStyle(b types.BaseStyle) error {
	return c.engine.AddBaseStyle(b)
}

// Overlays lists overlay declarations in catalog order.
func (c *Control) Overlays() []types.Overlay {
	return c.engine.Overlays()
}

// Status returns one overlay's declaration plus runtime view.
func (c *Control) Status(id string) (overlay.OverlayStatus, bool) {
	return c.engine.Status(id)
}

// Statuses returns every overlay's runtime view in catalog order.
func (c *Control) Statuses() []overlay.OverlayStatus {
	return c.engine.Statuses()
}

// BaseStyles lists base styles in catalog order.
func (c *Control) BaseStyles() []types.BaseStyle {
	return c.engine.BaseStyles()
}

// ActiveBase returns the active base style id.
func (c *Control) ActiveBase() string {
	return c.store.ActiveBase()
}

// Groups lists every known group.
func (c *Control) Groups() []types.Group {
	return c.engine.Groups()
}

// GroupStatuses returns every group's runtime view.
func (c *Control) GroupStatuses() []overlay.GroupStatus {
	return c.engine.GroupStatuses()
}

// Viewport returns the current camera snapshot.
func (c *Control) Viewport() types.ViewportState {
	return c.gateway.Viewport()
}

// Snapshot returns a copy of the full runtime state.
func (c *Control) Snapshot() types.PersistedState {
	return c.store.Snapshot()
}

// Bus exposes the event bus for subscribers such as the HTTP event stream.
func (c *Control) Bus() *event.Bus {
	return c.bus
}

// ReloadCatalog diffs a freshly parsed catalog against the registered one
// and applies the difference: changed entries update in place, new entries
// register, vanished entries drop. Overlays carrying loader callbacks were
// registered from code, not files, so the reload leaves them alone; a file
// entry updating one keeps its loader. Runtime state survives by id.
func (c *Control) ReloadCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return nil
	}
	var errs []error

	wantBases := make(map[string]bool, len(cat.BaseStyles))
	haveBases := make(map[string]bool)
	for _, b := range c.engine.BaseStyles() {
		haveBases[b.ID] = true
	}
	for _, b := range cat.BaseStyles {
		wantBases[b.ID] = true
		var err error
		if haveBases[b.ID] {
			err = c.engine.UpdateBaseStyle(b)
		} else {
			err = c.engine.AddBaseStyle(b)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for id := range haveBases {
		if !wantBases[id] {
			c.engine.RemoveBaseStyle(id)
		}
	}

	c.engine.SetGroups(cat.Groups)

	wantOverlays := make(map[string]bool, len(cat.Overlays))
	for _, o := range cat.Overlays {
		wantOverlays[o.ID] = true
		existing, ok := c.engine.Overlay(o.ID)
		if ok && existing.OnActivate != nil && o.OnActivate == nil {
			o.OnActivate = existing.OnActivate
		}
		var err error
		if ok {
			err = c.engine.UpdateOverlay(ctx, o)
		} else {
			err = c.engine.AddOverlay(o)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, o := range c.engine.Overlays() {
		if !wantOverlays[o.ID] && o.OnActivate == nil {
			c.engine.RemoveOverlay(o.ID)
		}
	}

	return errors.Join(errs...)
}
