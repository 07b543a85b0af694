package overlay

import (
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// registry tracks every live render layer together with the overlay that
// owns it. The two maps move in lockstep: each layer id in layers appears in
// exactly one owner's slice, and removing an owner removes exactly its ids.
// Callers synchronize through the engine mutex.
type registry struct {
	layers map[string]types.RenderLayer
	owned  map[string][]string
}

func newRegistry() *registry {
	return &registry{
		layers: make(map[string]types.RenderLayer),
		owned:  make(map[string][]string),
	}
}

// has reports whether the overlay currently owns committed layers.
func (r *registry) has(overlayID string) bool {
	return len(r.owned[overlayID]) > 0
}

// replace swaps the overlay's owned set for the given handles. The previous
// ids are dropped first so a re-activation with overlapping layer ids never
// leaves duplicates behind.
func (r *registry) replace(overlayID string, handles []types.RenderLayer) {
	r.remove(overlayID)
	if len(handles) == 0 {
		return
	}
	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		r.layers[h.ID()] = h
		ids = append(ids, h.ID())
	}
	r.owned[overlayID] = ids
}

// remove drops the overlay's owned layers. Unknown owners are a no-op.
func (r *registry) remove(overlayID string) {
	for _, id := range r.owned[overlayID] {
		delete(r.layers, id)
	}
	delete(r.owned, overlayID)
}

// reopacity swaps each of the overlay's handles for a derived one carrying
// the given opacity. Handles are immutable, so the old instances are simply
// replaced in place.
func (r *registry) reopacity(overlayID string, opacity float64) {
	for _, id := range r.owned[overlayID] {
		if h, ok := r.layers[id]; ok {
			r.layers[id] = h.WithOpacity(opacity)
		}
	}
}

// composite returns all live layers in paint order: owners in the given
// order, each owner's layers in spec order.
func (r *registry) composite(order []string) []types.RenderLayer {
	out := make([]types.RenderLayer, 0, len(r.layers))
	for _, overlayID := range order {
		for _, id := range r.owned[overlayID] {
			if h, ok := r.layers[id]; ok {
				out = append(out, h)
			}
		}
	}
	return out
}

// clear empties the registry, typically ahead of a base-style swap.
func (r *registry) clear() {
	r.layers = make(map[string]types.RenderLayer)
	r.owned = make(map[string][]string)
}

func (r *registry) size() int {
	return len(r.layers)
}
