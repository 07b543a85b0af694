package overlay

import (
	"context"

	"github.com/drecchia/maplibre-layerlibre/internal/event"
)

// SwitchBase swaps the active base style. Switching to the already-active
// base is a no-op. The composite is torn down before the style swap; once
// the gateway reports the new style ready, every render-eligible overlay is
// re-activated on top of it. Returns false only when the id is unknown.
func (e *Engine) SwitchBase(id string) bool {
	return e.switchBase(id, false)
}

// ApplyBase force-applies a base style, skipping the no-op guard. Startup
// uses it: the restored store may already name the target base, but the map
// has never been given a style.
func (e *Engine) ApplyBase(id string) bool {
	return e.switchBase(id, true)
}

func (e *Engine) switchBase(id string, force bool) bool {
	e.mu.Lock()
	b, ok := e.bases[id]
	if !ok {
		e.mu.Unlock()
		e.logUnknown("switchBase", "base", id)
		return false
	}
	if !e.store.SetActiveBase(id) && !force {
		e.mu.Unlock()
		return true
	}

	e.styleEpoch++
	e.registry.clear()
	e.filtered = make(map[string]bool)
	e.surface.Clear()
	e.mu.Unlock()

	// Register the continuation before issuing the swap so a gateway that
	// loads styles synchronously cannot slip the ready signal past us.
	e.gateway.OnStyleReady(func() { e.styleReady(id) })
	e.gateway.SetStyle(b.Style)
	baseSwitchesTotal.Inc()
	return true
}

// styleReady rebuilds the overlay stack on top of a freshly loaded base
// style. Overlays whose visible flag survived the switch re-run the full
// activation protocol as non-user calls, then styleload announces the new
// base to subscribers.
func (e *Engine) styleReady(baseID string) {
	e.mu.Lock()
	var ids []string
	for _, id := range e.order {
		if e.renderEligibleLocked(e.overlays[id]) {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.activate(context.Background(), id, false, true)
	}
	e.bus.Publish(event.Event{Topic: event.TopicStyleLoad, Payload: event.StyleLoadData{BaseID: baseID}})
}
