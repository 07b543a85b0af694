package headless

import (
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

var (
	_ types.ViewportGateway = (*Gateway)(nil)
	_ types.RenderSurface   = (*Surface)(nil)
	_ types.RenderLayer     = Layer{}
)

// Layer is an immutable in-memory render layer. Every construction and
// every WithOpacity derivation gets a fresh handle, so tests can tell
// instances apart even when ids repeat.
type Layer struct {
	id      string
	kind    string
	props   map[string]any
	opacity float64
	handle  string
}

// ID returns the layer id from the producing spec.
func (l Layer) ID() string { return l.id }

// Kind returns the spec's layer kind.
func (l Layer) Kind() string { return l.kind }

// Opacity returns the opacity the layer was built with.
func (l Layer) Opacity() float64 { return l.opacity }

// Handle returns the unique instance handle.
func (l Layer) Handle() string { return l.handle }

// Prop returns one pass-through prop value.
func (l Layer) Prop(key string) (any, bool) {
	v, ok := l.props[key]
	return v, ok
}

// WithOpacity derives a new layer carrying the given opacity. The receiver
// is left untouched.
func (l Layer) WithOpacity(opacity float64) types.RenderLayer {
	derived := l
	derived.opacity = opacity
	derived.handle = ulid.Make().String()
	return derived
}

// SurfaceOption configures a Surface.
type SurfaceOption func(*Surface)

// WithTooltipResolver installs the surface-level tooltip fallback used for
// picks on overlays without a tooltip spec.
func WithTooltipResolver(fn func(types.Pick) *types.TooltipContent) SurfaceOption {
	return func(s *Surface) { s.tooltip = fn }
}

// Surface is an in-memory RenderSurface holding the committed composite.
type Surface struct {
	mu        sync.Mutex
	committed []types.RenderLayer
	commits   int
	clears    int
	tooltip   func(types.Pick) *types.TooltipContent
}

// NewSurface builds an empty surface.
func NewSurface(opts ...SurfaceOption) *Surface {
	s := &Surface{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLayer constructs a layer from a declarative spec. Specs missing an
// id or kind fail, mirroring how a real surface rejects malformed layers.
func (s *Surface) CreateLayer(spec types.LayerSpec, opacity float64) (types.RenderLayer, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("layer spec missing id")
	}
	if spec.Kind == "" {
		return nil, fmt.Errorf("layer spec %q missing kind", spec.ID)
	}
	props := make(map[string]any, len(spec.Props))
	for k, v := range spec.Props {
		props[k] = v
	}
	return Layer{
		id:      spec.ID,
		kind:    spec.Kind,
		props:   props,
		opacity: opacity,
		handle:  ulid.Make().String(),
	}, nil
}

// Commit replaces the composite with the given layers in paint order.
func (s *Surface) Commit(layers []types.RenderLayer) {
	copied := make([]types.RenderLayer, len(layers))
	copy(copied, layers)

	s.mu.Lock()
	s.committed = copied
	s.commits++
	s.mu.Unlock()
}

// Clear tears the composite down entirely.
func (s *Surface) Clear() {
	s.mu.Lock()
	s.committed = nil
	s.clears++
	s.mu.Unlock()
}

// ResolveTooltip delegates to the configured fallback resolver, if any.
func (s *Surface) ResolveTooltip(pick types.Pick) *types.TooltipContent {
	if s.tooltip == nil {
		return nil
	}
	return s.tooltip(pick)
}

// Layers returns the committed composite in paint order.
func (s *Surface) Layers() []types.RenderLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.RenderLayer, len(s.committed))
	copy(out, s.committed)
	return out
}

// LayerIDs returns the committed layer ids in paint order.
func (s *Surface) LayerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.committed))
	for _, l := range s.committed {
		ids = append(ids, l.ID())
	}
	return ids
}

// Layer returns the committed layer with the given id.
func (s *Surface) Layer(id string) (types.RenderLayer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.committed {
		if l.ID() == id {
			return l, true
		}
	}
	return nil, false
}

// Commits reports how many times the composite was replaced.
func (s *Surface) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Clears reports how many times the composite was torn down.
func (s *Surface) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
