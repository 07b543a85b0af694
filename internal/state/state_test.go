package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drecchia/maplibre-layerlibre/internal/event"
	"github.com/drecchia/maplibre-layerlibre/internal/storage"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

func newTestStore(t *testing.T) (*Store, *event.Bus, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	s := New(bus, storage.New(fs, "/data"), "map-layer-control")
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, bus, fs
}

func TestStore_InitOverlay_NeverOverwrites(t *testing.T) {
	s, _, _ := newTestStore(t)

	first := s.InitOverlay("traffic", types.OverlayState{Visible: false, Opacity: 0.5}, "")
	assert.Equal(t, types.OverlayState{Visible: false, Opacity: 0.5}, first)

	s.SetOverlayVisible("traffic", true)

	// A later init with different defaults must not reset existing state
	again := s.InitOverlay("traffic", types.OverlayState{Visible: false, Opacity: 1}, "")
	assert.Equal(t, types.OverlayState{Visible: true, Opacity: 0.5}, again)
}

func TestStore_InitOverlay_SeedsGroupForVisibleMember(t *testing.T) {
	s, _, _ := newTestStore(t)

	s.InitOverlay("hydrants", types.OverlayState{Visible: true, Opacity: 1}, "infrastructure")

	g, ok := s.GroupState("infrastructure")
	require.True(t, ok)
	assert.Equal(t, types.GroupState{Visible: true, Opacity: 1}, g)

	// An invisible member does not seed its group
	s.InitOverlay("pipes", types.OverlayState{Visible: false, Opacity: 1}, "underground")
	_, ok = s.GroupState("underground")
	assert.False(t, ok)
}

func TestStore_SetOverlayVisible_PublishesOnChangeOnly(t *testing.T) {
	s, bus, _ := newTestStore(t)

	var got []event.OverlayChangeData
	unsub := bus.Subscribe(event.TopicOverlayChange, func(e event.Event) {
		got = append(got, e.Payload.(event.OverlayChangeData))
	})
	defer unsub()

	s.InitOverlay("traffic", types.OverlayState{Opacity: 1}, "")
	s.SetOverlayVisible("traffic", true)
	s.SetOverlayVisible("traffic", true) // no change, no event

	require.Len(t, got, 1)
	assert.Equal(t, event.OverlayChangeData{ID: "traffic", Visible: true, Opacity: 1}, got[0])
}

func TestStore_SetOverlayOpacity_Clamps(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.InitOverlay("traffic", types.OverlayState{Opacity: 1}, "")

	tests := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.0},
		{-0.2, 0},
		{0.42, 0.42},
	}
	for _, tt := range tests {
		s.SetOverlayOpacity("traffic", tt.in)
		st, _ := s.OverlayState("traffic")
		assert.Equal(t, tt.want, st.Opacity, "opacity %v", tt.in)
	}
}

func TestStore_SetActiveBase_NoOpWhenUnchanged(t *testing.T) {
	s, bus, _ := newTestStore(t)

	var events int
	unsub := bus.Subscribe(event.TopicBaseChange, func(event.Event) { events++ })
	defer unsub()

	assert.True(t, s.SetActiveBase("satellite"))
	assert.False(t, s.SetActiveBase("satellite"))
	assert.Equal(t, 1, events)
	assert.Equal(t, "satellite", s.ActiveBase())
}

func TestStore_SetViewport_PublishesOnChangeOnly(t *testing.T) {
	s, bus, _ := newTestStore(t)

	var events int
	unsub := bus.Subscribe(event.TopicViewportChange, func(event.Event) { events++ })
	defer unsub()

	v := types.ViewportState{Center: types.LngLat{Lng: -46.6, Lat: -23.5}, Zoom: 12}
	s.SetViewport(v)
	s.SetViewport(v)

	assert.Equal(t, 1, events)
	require.NotNil(t, s.Viewport())
	assert.Equal(t, v, *s.Viewport())
}

func TestStore_DebouncedFlush(t *testing.T) {
	s, _, fs := newTestStore(t)

	s.InitOverlay("traffic", types.OverlayState{Opacity: 1}, "")
	s.SetOverlayVisible("traffic", true)

	// Nothing hits the backend before the debounce window closes
	exists, _ := afero.Exists(fs, "/data/state/map-layer-control.json")
	assert.False(t, exists)

	require.Eventually(t, func() bool {
		ok, _ := afero.Exists(fs, "/data/state/map-layer-control.json")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	data, err := afero.ReadFile(fs, "/data/state/map-layer-control.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"traffic"`)
}

func TestStore_PersistedShape(t *testing.T) {
	s, _, fs := newTestStore(t)

	s.InitOverlay("traffic", types.OverlayState{Opacity: 1}, "")
	s.SetOverlayVisible("traffic", true)
	s.SetOverlayOpacity("traffic", 0.8)
	s.SetGroupVisible("infrastructure", true)
	s.SetActiveBase("osm")
	s.SetViewport(types.ViewportState{Center: types.LngLat{Lng: 2.35, Lat: 48.85}, Zoom: 11.5, Bearing: 30, Pitch: 45})

	require.NoError(t, s.Flush(context.Background()))

	data, err := afero.ReadFile(fs, "/data/state/map-layer-control.json")
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"base": "osm",
		"overlays": {"traffic": {"visible": true, "opacity": 0.8}},
		"groups": {"infrastructure": {"visible": true, "opacity": 1}},
		"viewport": {"center": {"lng": 2.35, "lat": 48.85}, "zoom": 11.5, "bearing": 30, "pitch": 45}
	}`, string(data))
}

func TestStore_RestorePurgesStaleIDs(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := storage.New(fs, "/data")
	ctx := context.Background()

	blob := types.PersistedState{
		Base: "osm",
		Overlays: map[string]types.OverlayState{
			"traffic": {Visible: true, Opacity: 0.8},
			"ghost":   {Visible: true, Opacity: 1},
		},
		Groups: map[string]types.GroupState{
			"phantom": {Visible: true, Opacity: 1},
		},
	}
	require.NoError(t, backend.Put(ctx, []string{"state", "map-layer-control"}, blob))

	bus := event.NewBus()
	defer bus.Close()
	s := New(bus, backend, "map-layer-control")
	defer s.Close(ctx)

	s.Restore(ctx, map[string]bool{"traffic": true}, map[string]bool{})

	st, ok := s.OverlayState("traffic")
	require.True(t, ok)
	assert.Equal(t, types.OverlayState{Visible: true, Opacity: 0.8}, st)

	_, ok = s.OverlayState("ghost")
	assert.False(t, ok, "stale overlay id must not be restored")
	_, ok = s.GroupState("phantom")
	assert.False(t, ok, "stale group id must not be restored")

	// The next write no longer contains the stale ids
	require.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, "/data/state/map-layer-control.json")
		if err != nil {
			return false
		}
		return !strings.Contains(string(data), "ghost") && !strings.Contains(string(data), "phantom")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStore_Restore_MissingBlob(t *testing.T) {
	s, _, _ := newTestStore(t)

	s.Restore(context.Background(), map[string]bool{"traffic": true}, nil)

	assert.Equal(t, "", s.ActiveBase())
	_, ok := s.OverlayState("traffic")
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	s, bus, fs := newTestStore(t)
	ctx := context.Background()

	var cleared int
	unsub := bus.Subscribe(event.TopicMemoryCleared, func(event.Event) { cleared++ })
	defer unsub()

	s.SetActiveBase("osm")
	s.InitOverlay("traffic", types.OverlayState{Visible: true, Opacity: 1}, "")
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, 1, cleared)
	assert.Equal(t, "", s.ActiveBase())
	_, ok := s.OverlayState("traffic")
	assert.False(t, ok)

	exists, _ := afero.Exists(fs, "/data/state/map-layer-control.json")
	assert.False(t, exists, "backend blob must be deleted")

	// The canceled debounce timer must not resurrect the blob
	time.Sleep(2 * FlushDebounce)
	exists, _ = afero.Exists(fs, "/data/state/map-layer-control.json")
	assert.False(t, exists)
}

func TestStore_CloseWritesPendingState(t *testing.T) {
	fs := afero.NewMemMapFs()
	bus := event.NewBus()
	defer bus.Close()
	s := New(bus, storage.New(fs, "/data"), "map-layer-control")

	s.SetActiveBase("osm")
	require.NoError(t, s.Close(context.Background()))

	data, err := afero.ReadFile(fs, "/data/state/map-layer-control.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"osm"`)

	// Mutations after close stay in memory only
	s.SetActiveBase("satellite")
	time.Sleep(2 * FlushDebounce)
	data, _ = afero.ReadFile(fs, "/data/state/map-layer-control.json")
	assert.NotContains(t, string(data), `"satellite"`)
}
