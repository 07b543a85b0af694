// Package types provides the core data types for the layer control.
package types

import "context"

// Overlay describes one user-toggleable data layer.
//
// Overlays are immutable once registered except through MergeConfig on an
// activation context (or the control's own add/remove API); runtime state
// (visibility, opacity) lives in the state store, never here.
type Overlay struct {
	ID    string `json:"id"`
	Label string `json:"label"`

	// Group is an optional group key. Referencing a group materializes it
	// implicitly; an explicit Group entry only overrides the label.
	Group string `json:"group,omitempty"`

	// LayerSpecs are the declarative render layers owned by this overlay,
	// in paint order. Loaders commonly inject these at activation time.
	LayerSpecs []LayerSpec `json:"layerSpecs,omitempty"`

	// OnActivate is invoked on every activation, before layers are built.
	// Caching across activations is the loader's own responsibility via the
	// context's cache accessors.
	OnActivate LoaderFunc `json:"-"`

	OpacityEnabled bool    `json:"opacityEnabled,omitempty"`
	DefaultOpacity float64 `json:"defaultOpacity"`
	DefaultVisible bool    `json:"defaultVisible,omitempty"`

	// Viewport is applied on user-initiated activation.
	Viewport *ViewportDirective `json:"viewport,omitempty"`

	// ForcedBaseID switches the active base style before this overlay is
	// shown. Empty means any base is fine.
	ForcedBaseID string `json:"forcedBase,omitempty"`

	// ZoomRange suppresses rendering outside [Min, Max). User intent is
	// preserved while filtered.
	ZoomRange *ZoomRange `json:"zoomRange,omitempty"`

	Tooltip *TooltipSpec `json:"tooltip,omitempty"`
}

// LayerSpec is a declarative description of a single render layer.
// Kind and Props are pass-through configuration for the render surface.
type LayerSpec struct {
	ID    string         `json:"id"`
	Kind  string         `json:"kind"`
	Props map[string]any `json:"props,omitempty"`
}

// Group is a named collection of overlays sharing one master control.
type Group struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ZoomRange constrains rendering to zoom levels in [Min, Max).
// A nil bound is open on that side.
type ZoomRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether zoom falls inside the range. The lower bound is
// inclusive and the upper bound exclusive, so an overlay with Max 10 is
// filtered at exactly zoom 10.
func (zr *ZoomRange) Contains(zoom float64) bool {
	if zr == nil {
		return true
	}
	if zr.Min != nil && zoom < *zr.Min {
		return false
	}
	if zr.Max != nil && zoom >= *zr.Max {
		return false
	}
	return true
}

// LoaderFunc fetches or derives an overlay's data at activation time.
// Returning an error marks the activation failed; layers are not built.
type LoaderFunc func(ctx context.Context, ac ActivateContext) error

// ActivateContext is the narrow window a loader gets into the engine: an
// immutable viewport snapshot, the overlay's private cache, a config-merge
// mutator, and read-only state queries. No live engine handles are exposed.
type ActivateContext interface {
	// OverlayID identifies the overlay being activated.
	OverlayID() string

	// Viewport returns the camera snapshot taken when activation started.
	Viewport() ViewportState

	// CacheGet, CacheSet and CacheClear operate on the overlay's private
	// cache, which survives deactivation and lives until the overlay is
	// removed.
	CacheGet(key string) (any, bool)
	CacheSet(key string, value any)
	CacheClear()

	// MergeConfig folds partial fields into the live overlay configuration.
	// Most loaders use it to inject LayerSpecs computed from fetched data.
	MergeConfig(patch OverlayPatch)

	// OverlayState returns another overlay's runtime state, read-only.
	OverlayState(id string) (OverlayState, bool)

	// ActiveBase returns the id of the currently active base style.
	ActiveBase() string
}

// OverlayPatch is a partial overlay update applied by MergeConfig.
// Nil fields are left untouched.
type OverlayPatch struct {
	Label      *string            `json:"label,omitempty"`
	LayerSpecs []LayerSpec        `json:"layerSpecs,omitempty"`
	Viewport   *ViewportDirective `json:"viewport,omitempty"`
	ZoomRange  *ZoomRange         `json:"zoomRange,omitempty"`
	Tooltip    *TooltipSpec       `json:"tooltip,omitempty"`
}
