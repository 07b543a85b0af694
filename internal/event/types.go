package event

import (
	"encoding/json"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// BaseChangeData is the payload for basechange events.
type BaseChangeData struct {
	ID string `json:"id"`
}

// OverlayChangeData is the payload for overlaychange events.
type OverlayChangeData struct {
	ID      string  `json:"id"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

// GroupChangeData is the payload for overlaygroupchange events.
type GroupChangeData struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

// LoadingData is the payload for loading events.
type LoadingData struct {
	ID string `json:"id"`
}

// SuccessData is the payload for success events.
type SuccessData struct {
	ID string `json:"id"`
}

// ErrorData is the payload for error events. Error carries the loader or
// layer-construction failure message.
type ErrorData struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// StyleLoadData is the payload for styleload events, fired after a base
// style finished loading and visible overlays were re-activated.
type StyleLoadData struct {
	BaseID string `json:"baseId"`
}

// ViewportChangeData is the payload for viewportchange events.
type ViewportChangeData = types.ViewportState

// ZoomFilterData is the payload for zoomfilter events.
type ZoomFilterData struct {
	ID       string `json:"id"`
	Filtered bool   `json:"filtered"`
}

// MemoryClearedData is the payload for memorycleared events.
type MemoryClearedData struct{}

// ChangeData is the umbrella payload fired alongside every specific event.
// It marshals flat: the specific payload's fields plus a "type" field.
type ChangeData struct {
	Type    Topic `json:"type"`
	Payload any   `json:"payload,omitempty"`
}

// MarshalJSON inlines the wrapped payload's fields next to "type".
func (c ChangeData) MarshalJSON() ([]byte, error) {
	flat := map[string]any{"type": c.Type}
	if c.Payload != nil {
		inner, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(inner, &fields); err == nil {
			for k, v := range fields {
				if k != "type" {
					flat[k] = v
				}
			}
		} else {
			flat["payload"] = c.Payload
		}
	}
	return json.Marshal(flat)
}
