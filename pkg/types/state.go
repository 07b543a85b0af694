package types

// OverlayState is the runtime state persisted per overlay. Created lazily on
// first reference from the overlay's defaults and never recreated, so later
// config changes do not retroactively alter it.
type OverlayState struct {
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

// GroupState is the runtime state persisted per group.
type GroupState struct {
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

// PersistedState is the on-disk blob, read and written verbatim. The schema
// is a compatibility contract across reloads; do not rename fields.
type PersistedState struct {
	Base     string                  `json:"base"`
	Overlays map[string]OverlayState `json:"overlays"`
	Groups   map[string]GroupState   `json:"groups"`
	Viewport *ViewportState          `json:"viewport"`
}

// ClampOpacity confines v to [0, 1].
func ClampOpacity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
