package overlay

import (
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// activateContext is the window a loader gets into the engine for the
// duration of one activation: the viewport snapshot taken when activation
// started, the overlay's private cache, a config-merge mutator and a couple
// of read-only state queries. No live engine or map handles leak through.
type activateContext struct {
	engine    *Engine
	overlayID string
	viewport  types.ViewportState
}

var _ types.ActivateContext = (*activateContext)(nil)

func (c *activateContext) OverlayID() string { return c.overlayID }

func (c *activateContext) Viewport() types.ViewportState { return c.viewport }

func (c *activateContext) CacheGet(key string) (any, bool) {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	entries, ok := e.cache[c.overlayID]
	if !ok {
		return nil, false
	}
	v, ok := entries[key]
	return v, ok
}

func (c *activateContext) CacheSet(key string, value any) {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	entries, ok := e.cache[c.overlayID]
	if !ok {
		entries = make(map[string]any)
		e.cache[c.overlayID] = entries
	}
	entries[key] = value
}

func (c *activateContext) CacheClear() {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, c.overlayID)
}

// MergeConfig folds partial fields into the live overlay configuration.
// A loader merging for an overlay that was removed mid-flight is a no-op.
func (c *activateContext) MergeConfig(patch types.OverlayPatch) {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.overlays[c.overlayID]
	if !ok {
		return
	}
	if patch.Label != nil {
		o.Label = *patch.Label
	}
	if patch.LayerSpecs != nil {
		o.LayerSpecs = patch.LayerSpecs
	}
	if patch.Viewport != nil {
		o.Viewport = patch.Viewport
	}
	if patch.ZoomRange != nil {
		o.ZoomRange = patch.ZoomRange
	}
	if patch.Tooltip != nil {
		o.Tooltip = patch.Tooltip
	}
}

func (c *activateContext) OverlayState(id string) (types.OverlayState, bool) {
	return c.engine.store.OverlayState(id)
}

func (c *activateContext) ActiveBase() string {
	return c.engine.store.ActiveBase()
}
