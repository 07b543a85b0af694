package types

// ViewportGateway is the thin accessor over the host map's camera and style
// lifecycle. Implementations wrap a real map engine; the headless package
// provides an in-memory one.
type ViewportGateway interface {
	// Viewport returns the current camera snapshot.
	Viewport() ViewportState

	// FlyTo issues a camera transition. Partial directives are honored:
	// bounds win over center+zoom, bearing and pitch apply independently.
	FlyTo(d ViewportDirective)

	// SetStyle swaps the full map style for the given descriptor.
	SetStyle(style string)

	// OnStyleReady registers a one-shot callback fired when the style
	// issued by SetStyle has finished loading.
	OnStyleReady(fn func())

	// OnMoveEnd registers a repeating callback fired after camera movement
	// settles. The returned function unregisters it.
	OnMoveEnd(fn func(ViewportState)) (unsubscribe func())

	// ContainerSize returns the map container dimensions in pixels.
	ContainerSize() (width, height int)
}

// RenderLayer is a live visual layer handed to the render surface. Handles
// are immutable: opacity changes derive a new handle via WithOpacity.
type RenderLayer interface {
	// ID returns the layer id from the spec that produced this layer.
	ID() string

	// Opacity returns the opacity the layer was built with.
	Opacity() float64

	// WithOpacity derives a new layer carrying the given opacity. The
	// receiver is left untouched.
	WithOpacity(opacity float64) RenderLayer
}

// RenderSurface owns the single composited render-layer collection.
type RenderSurface interface {
	// CreateLayer constructs a live layer from a declarative spec. A nil
	// layer with an error means construction failed; the engine converts
	// that into an activation error.
	CreateLayer(spec LayerSpec, opacity float64) (RenderLayer, error)

	// Commit replaces the composited collection with the given layers, in
	// paint order.
	Commit(layers []RenderLayer)

	// Clear tears the composite down entirely.
	Clear()

	// ResolveTooltip lets the surface answer picks for overlays that carry
	// no tooltip spec of their own. Nil means no tooltip.
	ResolveTooltip(pick Pick) *TooltipContent
}
