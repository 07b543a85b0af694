package types

import "github.com/paulmach/orb"

// TooltipSpec declares how an overlay's pick tooltip is produced. Exactly
// one of the three variants should be set: a text template, a structured
// field list, or a custom function. Func wins over Fields, Fields over Text.
type TooltipSpec struct {
	// Text is a literal tooltip body. Segments wrapped in {{ }} are
	// evaluated as expressions against the picked feature's properties.
	Text string `json:"text,omitempty"`

	// Title plus Fields render a structured key/value tooltip.
	Title  string         `json:"title,omitempty"`
	Fields []TooltipField `json:"fields,omitempty"`

	// Func computes the tooltip directly. Returning nil suppresses it.
	Func func(pick Pick) *TooltipContent `json:"-"`
}

// TooltipField maps one feature property to a labelled tooltip row.
type TooltipField struct {
	Label    string `json:"label"`
	Property string `json:"property"`
}

// TooltipContent is the resolved tooltip payload handed back to the map.
type TooltipContent struct {
	HTML  string `json:"html"`
	Style string `json:"style,omitempty"`
}

// Pick describes a hover/click hit on a rendered feature.
type Pick struct {
	OverlayID  string         `json:"overlayId"`
	LayerID    string         `json:"layerId,omitempty"`
	LngLat     orb.Point      `json:"lngLat"`
	Properties map[string]any `json:"properties,omitempty"`
}
