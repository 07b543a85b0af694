// Package headless provides in-memory implementations of the map-facing
// ports. They back server-side deployments where no real map engine exists,
// and give tests a host map they can drive by hand.
package headless

import (
	"math"
	"sync"

	"github.com/paulmach/orb"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

const (
	minZoom = 0
	maxZoom = 22

	// worldTileSize is the pixel size of the zoom-0 world, matching the
	// 512px tiles the fit-bounds arithmetic assumes.
	worldTileSize = 512
)

// Gateway is an in-memory ViewportGateway. Camera moves apply instantly;
// move-end and style-ready notifications fire only when the test or host
// calls FireMoveEnd and FireStyleReady, unless synchronous style loading
// was requested.
type Gateway struct {
	mu         sync.Mutex
	viewport   types.ViewportState
	style      string
	styleReady []func()
	moveEnds   map[uint64]func(types.ViewportState)
	nextID     uint64
	width      int
	height     int
	syncStyle  bool
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithViewport sets the initial camera.
func WithViewport(v types.ViewportState) GatewayOption {
	return func(g *Gateway) { g.viewport = v }
}

// WithContainerSize sets the pretend container dimensions used by
// fit-bounds arithmetic.
func WithContainerSize(width, height int) GatewayOption {
	return func(g *Gateway) { g.width, g.height = width, height }
}

// WithSyncStyleReady makes SetStyle fire pending style-ready callbacks
// inline, for hosts that do not drive the gateway manually.
func WithSyncStyleReady() GatewayOption {
	return func(g *Gateway) { g.syncStyle = true }
}

// NewGateway builds a gateway with a 1024x768 container at zoom 0 unless
// options say otherwise.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		moveEnds: make(map[uint64]func(types.ViewportState)),
		width:    1024,
		height:   768,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Viewport returns the current camera snapshot.
func (g *Gateway) Viewport() types.ViewportState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewport
}

// SetViewport places the camera directly, bypassing directive handling.
func (g *Gateway) SetViewport(v types.ViewportState) {
	g.mu.Lock()
	g.viewport = v
	g.mu.Unlock()
}

// SetZoom moves only the zoom, a shorthand for zoom-filter scenarios.
func (g *Gateway) SetZoom(zoom float64) {
	g.mu.Lock()
	g.viewport.Zoom = zoom
	g.mu.Unlock()
}

// FlyTo applies a camera directive instantly. Bounds win over center and
// zoom; bearing and pitch apply independently. No move-end fires; callers
// drive that through FireMoveEnd.
func (g *Gateway) FlyTo(d types.ViewportDirective) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if d.Bounds != nil {
		g.viewport.Center = types.FromPoint(d.Bounds.Center())
		g.viewport.Zoom = fitZoom(*d.Bounds, g.width, g.height, d.Padding)
	} else {
		if d.Center != nil {
			g.viewport.Center = *d.Center
		}
		if d.Zoom != nil {
			g.viewport.Zoom = clampZoom(*d.Zoom)
		}
	}
	if d.Bearing != nil {
		g.viewport.Bearing = *d.Bearing
	}
	if d.Pitch != nil {
		g.viewport.Pitch = *d.Pitch
	}
}

// SetStyle records the style descriptor. With synchronous style loading the
// pending style-ready callbacks fire before SetStyle returns.
func (g *Gateway) SetStyle(style string) {
	g.mu.Lock()
	g.style = style
	sync := g.syncStyle
	g.mu.Unlock()

	if sync {
		g.FireStyleReady()
	}
}

// Style returns the last descriptor handed to SetStyle.
func (g *Gateway) Style() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.style
}

// OnStyleReady queues a one-shot callback for the next style-ready event.
func (g *Gateway) OnStyleReady(fn func()) {
	g.mu.Lock()
	g.styleReady = append(g.styleReady, fn)
	g.mu.Unlock()
}

// FireStyleReady fires and drains the queued style-ready callbacks.
func (g *Gateway) FireStyleReady() {
	g.mu.Lock()
	pending := g.styleReady
	g.styleReady = nil
	g.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// OnMoveEnd registers a repeating move-end callback. The returned function
// unregisters it.
func (g *Gateway) OnMoveEnd(fn func(types.ViewportState)) func() {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.moveEnds[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.moveEnds, id)
		g.mu.Unlock()
	}
}

// FireMoveEnd notifies every move-end subscriber with the current camera.
func (g *Gateway) FireMoveEnd() {
	g.mu.Lock()
	v := g.viewport
	handlers := make([]func(types.ViewportState), 0, len(g.moveEnds))
	for _, fn := range g.moveEnds {
		handlers = append(handlers, fn)
	}
	g.mu.Unlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// ContainerSize returns the pretend container dimensions.
func (g *Gateway) ContainerSize() (width, height int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width, g.height
}

// fitZoom approximates the web-mercator zoom at which bounds fit the
// container, the arithmetic a fit-bounds camera call performs against a
// 512px zoom-0 world.
func fitZoom(b orb.Bound, width, height int, padding float64) float64 {
	lngFrac := (b.Max[0] - b.Min[0]) / 360
	latFrac := mercatorY(b.Min[1]) - mercatorY(b.Max[1])

	availW := float64(width) - 2*padding
	availH := float64(height) - 2*padding
	if availW <= 0 || availH <= 0 {
		return minZoom
	}

	zoom := float64(maxZoom)
	if lngFrac > 0 {
		zoom = math.Min(zoom, math.Log2(availW/(worldTileSize*lngFrac)))
	}
	if latFrac > 0 {
		zoom = math.Min(zoom, math.Log2(availH/(worldTileSize*latFrac)))
	}
	return clampZoom(zoom)
}

// mercatorY maps latitude to the [0,1] vertical world fraction, north at 0.
func mercatorY(lat float64) float64 {
	s := math.Sin(lat * math.Pi / 180)
	return 0.5 - math.Log((1+s)/(1-s))/(4*math.Pi)
}

func clampZoom(z float64) float64 {
	if z < minZoom {
		return minZoom
	}
	if z > maxZoom {
		return maxZoom
	}
	return z
}
