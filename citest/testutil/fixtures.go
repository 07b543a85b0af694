package testutil

import (
	"os"
	"path/filepath"
)

// TempDir creates a temporary directory
type TempDir struct {
	Path string
}

// NewTempDir creates a temp directory
func NewTempDir() (*TempDir, error) {
	path, err := os.MkdirTemp("", "layerlibre-test-*")
	if err != nil {
		return nil, err
	}
	return &TempDir{Path: path}, nil
}

// WriteFile creates or overwrites a file in the temp directory
func (d *TempDir) WriteFile(name, content string) (string, error) {
	path := filepath.Join(d.Path, name)

	// Create parent directories if needed
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}

	return path, nil
}

// Cleanup removes the temp directory and all contents
func (d *TempDir) Cleanup() {
	os.RemoveAll(d.Path)
}

// ---- Assertion Matchers ----

// EventMatcher helps match SSE events
type EventMatcher struct {
	events []SSEEvent
}

// NewEventMatcher creates an event matcher
func NewEventMatcher(events []SSEEvent) *EventMatcher {
	return &EventMatcher{events: events}
}

// HasType checks if any event has the given type
func (m *EventMatcher) HasType(eventType string) bool {
	for _, evt := range m.events {
		if evt.Type == eventType {
			return true
		}
	}
	return false
}

// CountType counts events of given type
func (m *EventMatcher) CountType(eventType string) int {
	count := 0
	for _, evt := range m.events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}

// FilterType returns events of given type
func (m *EventMatcher) FilterType(eventType string) []SSEEvent {
	var filtered []SSEEvent
	for _, evt := range m.events {
		if evt.Type == eventType {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

// ---- Catalog Fixtures ----

// CatalogJSON is a small valid catalog for file-based tests
const CatalogJSON = `{
  // Test catalog.
  "baseStyles": [
    {"id": "streets", "label": "Streets", "style": "https://tiles.example.com/streets.json"}
  ],
  "overlays": [
    {
      "id": "rivers",
      "label": "Rivers",
      "layers": [{"id": "rivers-line", "kind": "line", "props": {"source": "rivers"}}]
    }
  ]
}`

// CatalogJSONUpdated relabels rivers and adds a parks overlay
const CatalogJSONUpdated = `{
  "baseStyles": [
    {"id": "streets", "label": "Streets", "style": "https://tiles.example.com/streets.json"}
  ],
  "overlays": [
    {
      "id": "rivers",
      "label": "Waterways",
      "layers": [{"id": "rivers-line", "kind": "line", "props": {"source": "rivers"}}]
    },
    {
      "id": "parks",
      "label": "Parks",
      "layers": [{"id": "parks-fill", "kind": "fill", "props": {"source": "parks"}}]
    }
  ]
}`

// CatalogJSONBroken fails validation: the overlay has no label and no layers
const CatalogJSONBroken = `{"overlays": [{"id": "nameless"}]}`
