// Package overlay implements the activation engine at the heart of the
// layer control. It owns the catalog of base styles and overlays, runs the
// activation and deactivation protocols against the host map through the
// gateway and surface ports, and keeps the render-layer registry, the state
// store and every event subscriber consistent.
//
// The engine mutex serializes all catalog and registry mutations. Loader
// callbacks and style-ready continuations run with the mutex released; each
// materialization re-checks the visible flag and the style epoch before
// committing, so stale completions drop out instead of racing.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/drecchia/maplibre-layerlibre/internal/event"
	"github.com/drecchia/maplibre-layerlibre/internal/logging"
	"github.com/drecchia/maplibre-layerlibre/internal/state"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// Engine drives overlays on and off the map. All exported methods are safe
// for concurrent use; the engine itself owns no goroutines.
type Engine struct {
	mu sync.Mutex

	overlays  map[string]*types.Overlay
	order     []string
	bases     map[string]types.BaseStyle
	baseOrder []string

	// groupLabels holds explicit group declarations. Groups referenced
	// only from overlays materialize implicitly and are not listed here.
	groupLabels map[string]string
	groupOrder  []string

	registry *registry

	// filtered marks overlays whose rendering is suppressed by their zoom
	// range. loading marks in-flight loader calls. failed keeps the last
	// activation error message until the next successful materialization.
	filtered map[string]bool
	loading  map[string]bool
	failed   map[string]string

	// cache holds each overlay's private loader cache. Entries live until
	// the overlay is removed or the cache is cleared explicitly.
	cache map[string]map[string]any

	// styleEpoch increments on every base switch. Materializations carry
	// the epoch they started under and abort when it has moved on.
	styleEpoch uint64

	gateway types.ViewportGateway
	surface types.RenderSurface
	store   *state.Store
	bus     *event.Bus

	log zerolog.Logger
}

// Options collects the collaborators and initial catalog for New.
type Options struct {
	Gateway types.ViewportGateway
	Surface types.RenderSurface
	Store   *state.Store
	Bus     *event.Bus

	BaseStyles []types.BaseStyle
	Groups     []types.Group
	Overlays   []types.Overlay
}

// New builds an engine over the given collaborators and registers the
// initial catalog. Catalog entries are validated the same way the runtime
// add operations validate them.
func New(opts Options) (*Engine, error) {
	if opts.Gateway == nil || opts.Surface == nil || opts.Store == nil || opts.Bus == nil {
		return nil, errors.New("overlay: gateway, surface, store and bus are required")
	}

	e := &Engine{
		overlays:    make(map[string]*types.Overlay),
		bases:       make(map[string]types.BaseStyle),
		groupLabels: make(map[string]string),
		registry:    newRegistry(),
		filtered:    make(map[string]bool),
		loading:     make(map[string]bool),
		failed:      make(map[string]string),
		cache:       make(map[string]map[string]any),
		gateway:     opts.Gateway,
		surface:     opts.Surface,
		store:       opts.Store,
		bus:         opts.Bus,
		log:         logging.Component("engine"),
	}

	for _, b := range opts.BaseStyles {
		if err := e.AddBaseStyle(b); err != nil {
			return nil, err
		}
	}
	for _, g := range opts.Groups {
		if _, dup := e.groupLabels[g.ID]; !dup {
			e.groupOrder = append(e.groupOrder, g.ID)
		}
		e.groupLabels[g.ID] = g.Label
	}
	for _, o := range opts.Overlays {
		if err := e.AddOverlay(o); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Activate runs the activation protocol for one overlay. user marks
// user-initiated calls, which honor viewport directives and forced base
// styles. It returns false only when the id is unknown; protocol failures
// surface as error events, never as a return value.
func (e *Engine) Activate(ctx context.Context, id string, user bool) bool {
	return e.activate(ctx, id, user, false)
}

func (e *Engine) activate(ctx context.Context, id string, user, fromStyleReload bool) bool {
	e.mu.Lock()
	o, ok := e.overlays[id]
	if !ok {
		e.mu.Unlock()
		e.logUnknown("activate", "overlay", id)
		return false
	}

	e.store.InitOverlay(id, types.OverlayState{
		Visible: o.DefaultVisible,
		Opacity: types.ClampOpacity(o.DefaultOpacity),
	}, o.Group)

	// Already fully active: visible with committed layers. Style reloads
	// bypass the guard because the swap wiped the previous layers.
	if st, _ := e.store.OverlayState(id); st.Visible && e.registry.has(id) && !fromStyleReload {
		e.mu.Unlock()
		activationsTotal.WithLabelValues(resultNoop).Inc()
		return true
	}

	epoch := e.styleEpoch
	e.store.SetOverlayVisible(id, true)
	if o.Group != "" {
		// A visible member seeds its group's master state; an existing
		// entry, including a switched-off one, is left alone.
		e.store.InitGroup(o.Group, types.GroupState{Visible: true, Opacity: 1})
	}

	forced := ""
	if user && o.ForcedBaseID != "" && o.ForcedBaseID != e.store.ActiveBase() {
		forced = o.ForcedBaseID
	}
	var directive *types.ViewportDirective
	if user && !o.Viewport.Empty() {
		directive = o.Viewport
	}
	zoomRange := o.ZoomRange
	loader := o.OnActivate
	e.mu.Unlock()

	if forced != "" {
		// Camera first so the move starts under the old style; the base
		// switch follows and its style-ready continuation re-runs this
		// overlay without the user flag.
		if directive != nil {
			e.gateway.FlyTo(*directive)
		}
		e.SwitchBase(forced)
		activationsTotal.WithLabelValues(resultDeferred).Inc()
		return true
	}

	if directive != nil {
		e.gateway.FlyTo(*directive)
	}

	viewport := e.gateway.Viewport()

	e.mu.Lock()
	wasFiltered := e.filtered[id]
	if !zoomRange.Contains(viewport.Zoom) {
		e.filtered[id] = true
		e.mu.Unlock()
		if !wasFiltered {
			zoomFilterTransitionsTotal.WithLabelValues(directionOut).Inc()
			e.bus.Publish(event.Event{Topic: event.TopicZoomFilter, Payload: event.ZoomFilterData{ID: id, Filtered: true}})
		}
		activationsTotal.WithLabelValues(resultFiltered).Inc()
		return true
	}
	delete(e.filtered, id)
	if loader != nil {
		e.loading[id] = true
	}
	e.mu.Unlock()

	if wasFiltered {
		zoomFilterTransitionsTotal.WithLabelValues(directionIn).Inc()
		e.bus.Publish(event.Event{Topic: event.TopicZoomFilter, Payload: event.ZoomFilterData{ID: id, Filtered: false}})
	}

	if loader != nil {
		e.bus.Publish(event.Event{Topic: event.TopicLoading, Payload: event.LoadingData{ID: id}})

		err := runLoader(ctx, loader, &activateContext{engine: e, overlayID: id, viewport: viewport})

		e.mu.Lock()
		delete(e.loading, id)
		if err != nil {
			e.failed[id] = err.Error()
			e.mu.Unlock()
			e.log.Debug().Str("id", id).Err(err).Msg("overlay loader failed")
			loaderFailuresTotal.Inc()
			activationsTotal.WithLabelValues(resultError).Inc()
			e.bus.Publish(event.Event{Topic: event.TopicError, Payload: event.ErrorData{ID: id, Error: err.Error()}})
			return true
		}
		e.mu.Unlock()

		e.bus.Publish(event.Event{Topic: event.TopicSuccess, Payload: event.SuccessData{ID: id}})
	}

	e.mu.Lock()
	ok, errMsg := e.materializeLocked(id, epoch)
	e.mu.Unlock()

	switch {
	case errMsg != "":
		activationsTotal.WithLabelValues(resultError).Inc()
		e.bus.Publish(event.Event{Topic: event.TopicError, Payload: event.ErrorData{ID: id, Error: errMsg}})
	case ok:
		activationsTotal.WithLabelValues(resultActivated).Inc()
	default:
		activationsTotal.WithLabelValues(resultStale).Inc()
	}
	return true
}

// materializeLocked rebuilds the overlay's layers from its current specs
// and swaps them into the registry and surface in one step. The attempt is
// dropped as stale when the overlay vanished, lost its visible flag, got
// zoom-filtered, or the style epoch moved while the caller was suspended.
// Returns ok on commit; a non-empty errMsg reports a construction failure
// that left the previous layers untouched.
func (e *Engine) materializeLocked(id string, epoch uint64) (ok bool, errMsg string) {
	o, present := e.overlays[id]
	if !present {
		return false, ""
	}
	st, _ := e.store.OverlayState(id)
	if !st.Visible || e.filtered[id] || epoch != e.styleEpoch {
		return false, ""
	}

	handles := make([]types.RenderLayer, 0, len(o.LayerSpecs))
	for _, spec := range o.LayerSpecs {
		h, err := e.surface.CreateLayer(spec, st.Opacity)
		if err != nil {
			msg := fmt.Sprintf("layer %s: %v", spec.ID, err)
			e.failed[id] = msg
			return false, msg
		}
		handles = append(handles, h)
	}

	e.registry.replace(id, handles)
	delete(e.failed, id)
	e.commitLocked()
	return true, ""
}

// runLoader invokes the loader with panic recovery, so a panicking callback
// degrades into a normal activation error.
func runLoader(ctx context.Context, fn types.LoaderFunc, ac types.ActivateContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()
	return fn(ctx, ac)
}

// Deactivate removes the overlay's layers and clears its visible flag.
// Idempotent: deactivating an inactive overlay changes nothing. Returns
// false only when the id is unknown.
func (e *Engine) Deactivate(id string) bool {
	e.mu.Lock()
	if _, ok := e.overlays[id]; !ok {
		e.mu.Unlock()
		e.logUnknown("deactivate", "overlay", id)
		return false
	}
	e.store.SetOverlayVisible(id, false)
	if e.suppressLocked(id) {
		e.commitLocked()
	}
	e.mu.Unlock()
	return true
}

// SetOpacity updates the overlay's opacity, clamped to [0,1]. Committed
// layers are swapped for derived handles carrying the new value; an overlay
// without committed layers only records the state change.
func (e *Engine) SetOpacity(id string, opacity float64) bool {
	e.mu.Lock()
	if _, ok := e.overlays[id]; !ok {
		e.mu.Unlock()
		e.logUnknown("setOpacity", "overlay", id)
		return false
	}
	e.store.SetOverlayOpacity(id, opacity)
	if st, _ := e.store.OverlayState(id); e.registry.has(id) {
		e.registry.reopacity(id, st.Opacity)
		e.commitLocked()
	}
	e.mu.Unlock()
	return true
}

// ReevaluateZoom re-applies every visible overlay's zoom range against the
// current zoom. Overlays crossing out of range lose their layers; overlays
// crossing back in re-run the activation protocol, which also re-invokes
// their loader.
func (e *Engine) ReevaluateZoom(ctx context.Context) {
	zoom := e.gateway.Viewport().Zoom

	e.mu.Lock()
	var filteredOut, backInRange []string
	for _, id := range e.order {
		o := e.overlays[id]
		if o.ZoomRange == nil || !e.renderEligibleLocked(o) {
			continue
		}
		was := e.filtered[id]
		now := !o.ZoomRange.Contains(zoom)
		if was == now {
			continue
		}
		if now {
			e.filtered[id] = true
			e.registry.remove(id)
			filteredOut = append(filteredOut, id)
		} else {
			backInRange = append(backInRange, id)
		}
	}
	if len(filteredOut) > 0 {
		e.commitLocked()
	}
	e.mu.Unlock()

	for _, id := range filteredOut {
		zoomFilterTransitionsTotal.WithLabelValues(directionOut).Inc()
		e.bus.Publish(event.Event{Topic: event.TopicZoomFilter, Payload: event.ZoomFilterData{ID: id, Filtered: true}})
	}
	for _, id := range backInRange {
		e.activate(ctx, id, false, false)
	}
}

// SeedState initializes runtime state for every catalog entry from its
// declared defaults. Entries that already exist, restored ones included,
// are left untouched. Callers run this once after a restore so eligibility
// checks see first-run defaults.
func (e *Engine) SeedState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		o := e.overlays[id]
		e.store.InitOverlay(id, types.OverlayState{
			Visible: o.DefaultVisible,
			Opacity: types.ClampOpacity(o.DefaultOpacity),
		}, o.Group)
	}
}

// ActivateRestored runs a non-user activation for every render-eligible
// overlay in catalog order. Startup without a base style uses it; with a
// base style the style-ready continuation does the same job.
func (e *Engine) ActivateRestored(ctx context.Context) {
	e.mu.Lock()
	var ids []string
	for _, id := range e.order {
		if e.renderEligibleLocked(e.overlays[id]) {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.activate(ctx, id, false, false)
	}
}

// suppressLocked removes the overlay's live layers and transient flags
// without touching its stored state. Returns true when layers were removed.
func (e *Engine) suppressLocked(id string) bool {
	had := e.registry.has(id)
	e.registry.remove(id)
	delete(e.filtered, id)
	delete(e.loading, id)
	return had
}

func (e *Engine) commitLocked() {
	e.surface.Commit(e.registry.composite(e.order))
}

// renderEligibleLocked reports whether the overlay should currently render:
// its visible flag is set and its group, if any, is not switched off.
func (e *Engine) renderEligibleLocked(o *types.Overlay) bool {
	st, ok := e.store.OverlayState(o.ID)
	if !ok || !st.Visible {
		return false
	}
	if o.Group != "" {
		if gs, ok := e.store.GroupState(o.Group); ok && !gs.Visible {
			return false
		}
	}
	return true
}

func (e *Engine) logUnknown(op, kind, id string) {
	ev := e.log.Debug().Str("op", op).Str("id", id)
	if s := e.closest(kind, id); s != "" {
		ev = ev.Str("didYouMean", s)
	}
	ev.Msg("unknown " + kind + " id")
}

// closest returns the known id within edit distance 3 of id, if any, for
// did-you-mean diagnostics.
func (e *Engine) closest(kind, id string) string {
	e.mu.Lock()
	var pool []string
	switch kind {
	case "overlay":
		pool = e.order
	case "base":
		pool = e.baseOrder
	case "group":
		pool = e.groupIDsLocked()
	}
	candidates := make([]string, len(pool))
	copy(candidates, pool)
	e.mu.Unlock()

	best, bestDist := "", 4
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(id, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
