package types

import "github.com/paulmach/orb"

// LngLat is a geographic coordinate pair. The JSON shape is part of the
// persisted-state contract and must stay {lng, lat}.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Point converts to an orb.Point (x=lng, y=lat).
func (l LngLat) Point() orb.Point { return orb.Point{l.Lng, l.Lat} }

// FromPoint builds a LngLat from an orb.Point.
func FromPoint(p orb.Point) LngLat { return LngLat{Lng: p[0], Lat: p[1]} }

// ViewportState is a camera snapshot: the last known center, zoom, bearing
// and pitch. It doubles as the persisted viewport shape.
type ViewportState struct {
	Center  LngLat  `json:"center"`
	Zoom    float64 `json:"zoom"`
	Bearing float64 `json:"bearing"`
	Pitch   float64 `json:"pitch"`
}

// ViewportDirective tells the map where to go when an overlay is activated
// by the user. Bounds takes priority over Center+Zoom; Bearing and Pitch are
// applied independently when present.
type ViewportDirective struct {
	Bounds  *orb.Bound `json:"bounds,omitempty"`
	Center  *LngLat    `json:"center,omitempty"`
	Zoom    *float64   `json:"zoom,omitempty"`
	Bearing *float64   `json:"bearing,omitempty"`
	Pitch   *float64   `json:"pitch,omitempty"`

	// Padding is the fit-bounds padding in pixels.
	Padding float64 `json:"padding,omitempty"`

	// DurationMS is the camera transition time. Zero means jump.
	DurationMS int `json:"duration,omitempty"`
}

// Empty reports whether the directive carries no camera instruction at all.
func (d *ViewportDirective) Empty() bool {
	if d == nil {
		return true
	}
	return d.Bounds == nil && d.Center == nil && d.Zoom == nil && d.Bearing == nil && d.Pitch == nil
}
