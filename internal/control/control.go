// Package control assembles the layer control: catalog, state store,
// activation engine and host-map wiring behind a single facade. Embedders
// and the HTTP server talk to a Control; the packages underneath stay
// internal plumbing.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
	"github.com/drecchia/maplibre-layerlibre/internal/event"
	"github.com/drecchia/maplibre-layerlibre/internal/logging"
	"github.com/drecchia/maplibre-layerlibre/internal/overlay"
	"github.com/drecchia/maplibre-layerlibre/internal/state"
	"github.com/drecchia/maplibre-layerlibre/internal/storage"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// MoveEndDebounce is how long the camera must rest after a move before the
// viewport is persisted and zoom ranges are re-evaluated.
const MoveEndDebounce = 500 * time.Millisecond

// DefaultStateKey names the persisted state blob.
const DefaultStateKey = "control"

// Options configures a Control.
type Options struct {
	Catalog *config.Catalog
	Gateway types.ViewportGateway
	Surface types.RenderSurface
	Storage *storage.Storage

	// Bus is optional; a Control without one creates and owns its own.
	Bus *event.Bus

	// StateKey defaults to DefaultStateKey. Distinct keys let several
	// controls share one storage root.
	StateKey string

	// MoveDebounce defaults to MoveEndDebounce.
	MoveDebounce time.Duration
}

// Control is the assembled widget.
type Control struct {
	bus      *event.Bus
	ownsBus  bool
	store    *state.Store
	engine   *overlay.Engine
	gateway  types.ViewportGateway
	debounce time.Duration

	mu          sync.Mutex
	started     bool
	closed      bool
	unsubscribe func()
	moveTimer   *time.Timer
	lastMove    types.ViewportState

	log zerolog.Logger
}

// New wires the components together. Nothing touches storage or the map
// until Start runs.
func New(opts Options) (*Control, error) {
	bus := opts.Bus
	ownsBus := false
	if bus == nil {
		bus = event.NewBus()
		ownsBus = true
	}

	key := opts.StateKey
	if key == "" {
		key = DefaultStateKey
	}
	debounce := opts.MoveDebounce
	if debounce <= 0 {
		debounce = MoveEndDebounce
	}

	store := state.New(bus, opts.Storage, key)

	engineOpts := overlay.Options{
		Gateway: opts.Gateway,
		Surface: opts.Surface,
		Store:   store,
		Bus:     bus,
	}
	if opts.Catalog != nil {
		engineOpts.BaseStyles = opts.Catalog.BaseStyles
		engineOpts.Groups = opts.Catalog.Groups
		engineOpts.Overlays = opts.Catalog.Overlays
	}

	engine, err := overlay.New(engineOpts)
	if err != nil {
		if ownsBus {
			_ = bus.Close()
		}
		return nil, err
	}

	return &Control{
		bus:      bus,
		ownsBus:  ownsBus,
		store:    store,
		engine:   engine,
		gateway:  opts.Gateway,
		debounce: debounce,
		log:      logging.Component("control"),
	}, nil
}

// Start brings the control to life: restore persisted state, put the camera
// back, apply the base style, bring restored overlays up and start watching
// camera movement. It runs at most once.
func (c *Control) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	// Restore persisted state, dropping ids the catalog no longer knows.
	known := make(map[string]bool)
	for _, o := range c.engine.Overlays() {
		known[o.ID] = true
	}
	knownGroups := make(map[string]bool)
	for _, g := range c.engine.Groups() {
		knownGroups[g.ID] = true
	}
	c.store.Restore(ctx, known, knownGroups)

	// Entries the blob did not cover start from their declared defaults.
	c.engine.SeedState()

	// Put the camera back before any style or overlay work so loaders see
	// the restored viewport.
	if v := c.store.Viewport(); v != nil {
		c.gateway.FlyTo(types.ViewportDirective{
			Center:  &v.Center,
			Zoom:    &v.Zoom,
			Bearing: &v.Bearing,
			Pitch:   &v.Pitch,
		})
	}

	// Apply the base style; its style-ready continuation re-activates the
	// restored overlays. Without any base style, activate them directly.
	base := c.startupBase()
	if base != "" {
		c.engine.ApplyBase(base)
	} else {
		c.engine.ActivateRestored(ctx)
	}

	c.watchCamera(ctx)
	return nil
}

// startupBase picks the base style to apply at startup: the persisted one
// when the catalog still declares it, the catalog's first base otherwise.
func (c *Control) startupBase() string {
	bases := c.engine.BaseStyles()
	if len(bases) == 0 {
		return ""
	}
	persisted := c.store.ActiveBase()
	for _, b := range bases {
		if b.ID == persisted {
			return persisted
		}
	}
	if persisted != "" {
		c.log.Warn().Str("base", persisted).Msg("persisted base no longer declared, falling back to default")
	}
	return bases[0].ID
}

// watchCamera debounces move-end into a viewport save plus a zoom-range
// re-evaluation.
func (c *Control) watchCamera(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.unsubscribe = c.gateway.OnMoveEnd(func(v types.ViewportState) {
		c.mu.Lock()
		c.lastMove = v
		if c.moveTimer != nil {
			c.moveTimer.Stop()
		}
		c.moveTimer = time.AfterFunc(c.debounce, func() { c.cameraSettled(ctx) })
		c.mu.Unlock()
	})
}

func (c *Control) cameraSettled(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	v := c.lastMove
	c.mu.Unlock()

	c.store.SetViewport(v)
	c.engine.ReevaluateZoom(ctx)
}

// ClearMemory wipes runtime and persisted state. The catalog stays; the
// next touch of any entry re-seeds it from its defaults.
func (c *Control) ClearMemory(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close detaches from the map, flushes pending state and, when the control
// owns the bus, closes it. Idempotent.
func (c *Control) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	if c.moveTimer != nil {
		c.moveTimer.Stop()
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	err := c.store.Close(ctx)
	if c.ownsBus {
		_ = c.bus.Close()
	}
	return err
}
