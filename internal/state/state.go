// Package state owns the control's canonical runtime state and its
// persistence lifecycle. Every effective mutation publishes the matching
// change event and schedules a debounced write to the storage backend;
// the write is fire-and-forget and never blocks a mutator.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/drecchia/maplibre-layerlibre/internal/event"
	"github.com/drecchia/maplibre-layerlibre/internal/logging"
	"github.com/drecchia/maplibre-layerlibre/internal/storage"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

const (
	// FlushDebounce is how long mutations coalesce before the blob is
	// written to the backend.
	FlushDebounce = 250 * time.Millisecond
	// FlushMaxRetries caps retry attempts for a failing backend write.
	FlushMaxRetries = 3
	// flushInitialInterval is the initial interval for flush retry backoff.
	flushInitialInterval = 100 * time.Millisecond
	// flushMaxInterval is the maximum interval for flush retry backoff.
	flushMaxInterval = 2 * time.Second
)

// newFlushBackoff creates the retry policy for backend writes: exponential
// with jitter, capped, context-aware.
func newFlushBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = flushInitialInterval
	b.MaxInterval = flushMaxInterval
	b.RandomizationFactor = 0.5
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, FlushMaxRetries), ctx)
}

// Store is the persistent state store: active base id, per-overlay
// visibility/opacity, per-group visibility/opacity, and the last known
// viewport. Runtime entries are created lazily on first touch and never
// recreated, so a later config change to an overlay's defaults does not
// retroactively alter previously initialized state.
type Store struct {
	mu       sync.RWMutex
	base     string
	overlays map[string]types.OverlayState
	groups   map[string]types.GroupState
	viewport *types.ViewportState

	bus     *event.Bus
	backend *storage.Storage
	key     string

	timerMu sync.Mutex
	timer   *time.Timer
	dirty   bool
	closed  bool

	log zerolog.Logger
}

// New creates a Store persisting under the given storage key.
func New(bus *event.Bus, backend *storage.Storage, key string) *Store {
	return &Store{
		overlays: make(map[string]types.OverlayState),
		groups:   make(map[string]types.GroupState),
		bus:      bus,
		backend:  backend,
		key:      key,
		log:      logging.Component("state"),
	}
}

func (s *Store) path() []string {
	return []string{"state", s.key}
}

// OverlayState returns the runtime state for an overlay id.
func (s *Store) OverlayState(id string) (types.OverlayState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.overlays[id]
	return st, ok
}

// GroupState returns the runtime state for a group id.
func (s *Store) GroupState(id string) (types.GroupState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.groups[id]
	return st, ok
}

// ActiveBase returns the active base style id, or "" when none is set.
func (s *Store) ActiveBase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Viewport returns a copy of the last saved viewport, or nil.
func (s *Store) Viewport() *types.ViewportState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.viewport == nil {
		return nil
	}
	v := *s.viewport
	return &v
}

// Snapshot returns the full state in its persisted shape.
func (s *Store) Snapshot() types.PersistedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() types.PersistedState {
	blob := types.PersistedState{
		Base:     s.base,
		Overlays: make(map[string]types.OverlayState, len(s.overlays)),
		Groups:   make(map[string]types.GroupState, len(s.groups)),
	}
	for id, st := range s.overlays {
		blob.Overlays[id] = st
	}
	for id, st := range s.groups {
		blob.Groups[id] = st
	}
	if s.viewport != nil {
		v := *s.viewport
		blob.Viewport = &v
	}
	return blob
}

// InitOverlay seeds runtime state for an overlay on first touch. An
// existing entry is left untouched. A visible overlay joining a group not
// seen before seeds that group as visible with full opacity. Seeding is
// silent: it establishes the baseline rather than changing it.
func (s *Store) InitOverlay(id string, defaults types.OverlayState, group string) types.OverlayState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.overlays[id]
	if !ok {
		st = defaults
		st.Opacity = types.ClampOpacity(st.Opacity)
		s.overlays[id] = st
	}

	if group != "" && st.Visible {
		if _, seen := s.groups[group]; !seen {
			s.groups[group] = types.GroupState{Visible: true, Opacity: 1}
		}
	}

	return st
}

// InitGroup seeds runtime state for a group on first touch. An existing
// entry is left untouched.
func (s *Store) InitGroup(id string, defaults types.GroupState) types.GroupState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.groups[id]
	if !ok {
		st = defaults
		st.Opacity = types.ClampOpacity(st.Opacity)
		s.groups[id] = st
	}
	return st
}

// SetOverlayVisible updates an overlay's visible flag. Publishes
// overlaychange and schedules a flush only when the flag actually changes.
func (s *Store) SetOverlayVisible(id string, visible bool) {
	s.mu.Lock()
	st, ok := s.overlays[id]
	if !ok {
		st = types.OverlayState{Opacity: 1}
	}
	changed := st.Visible != visible
	st.Visible = visible
	s.overlays[id] = st
	s.mu.Unlock()

	if !changed {
		return
	}
	s.bus.Publish(event.Event{Topic: event.TopicOverlayChange, Payload: event.OverlayChangeData{
		ID: id, Visible: st.Visible, Opacity: st.Opacity,
	}})
	s.scheduleFlush()
}

// SetOverlayOpacity updates an overlay's opacity, clamped to [0,1].
func (s *Store) SetOverlayOpacity(id string, opacity float64) {
	opacity = types.ClampOpacity(opacity)

	s.mu.Lock()
	st, ok := s.overlays[id]
	if !ok {
		st = types.OverlayState{Opacity: 1}
	}
	changed := st.Opacity != opacity
	st.Opacity = opacity
	s.overlays[id] = st
	s.mu.Unlock()

	if !changed {
		return
	}
	s.bus.Publish(event.Event{Topic: event.TopicOverlayChange, Payload: event.OverlayChangeData{
		ID: id, Visible: st.Visible, Opacity: st.Opacity,
	}})
	s.scheduleFlush()
}

// SetGroupVisible updates a group's visible flag. A group with no entry
// counts as visible, so the first turn-off registers as a change.
func (s *Store) SetGroupVisible(id string, visible bool) {
	s.mu.Lock()
	st, ok := s.groups[id]
	if !ok {
		st = types.GroupState{Visible: true, Opacity: 1}
	}
	changed := st.Visible != visible
	st.Visible = visible
	s.groups[id] = st
	s.mu.Unlock()

	if !changed {
		return
	}
	s.bus.Publish(event.Event{Topic: event.TopicGroupChange, Payload: event.GroupChangeData{
		ID: id, Visible: st.Visible,
	}})
	s.scheduleFlush()
}

// SetGroupOpacity updates a group's master opacity, clamped to [0,1].
// Fanning the value out to member overlays is the engine's job.
func (s *Store) SetGroupOpacity(id string, opacity float64) {
	opacity = types.ClampOpacity(opacity)

	s.mu.Lock()
	st, ok := s.groups[id]
	if !ok {
		st = types.GroupState{Visible: true, Opacity: 1}
	}
	changed := st.Opacity != opacity
	st.Opacity = opacity
	s.groups[id] = st
	s.mu.Unlock()

	if !changed {
		return
	}
	s.bus.Publish(event.Event{Topic: event.TopicGroupChange, Payload: event.GroupChangeData{
		ID: id, Visible: st.Visible,
	}})
	s.scheduleFlush()
}

// SetActiveBase records the active base style id. Returns false without
// publishing when the id is unchanged, guarding against redundant style
// reloads.
func (s *Store) SetActiveBase(id string) bool {
	s.mu.Lock()
	if s.base == id {
		s.mu.Unlock()
		return false
	}
	s.base = id
	s.mu.Unlock()

	s.bus.Publish(event.Event{Topic: event.TopicBaseChange, Payload: event.BaseChangeData{ID: id}})
	s.scheduleFlush()
	return true
}

// SetViewport records the last known viewport.
func (s *Store) SetViewport(v types.ViewportState) {
	s.mu.Lock()
	if s.viewport != nil && *s.viewport == v {
		s.mu.Unlock()
		return
	}
	s.viewport = &v
	s.mu.Unlock()

	s.bus.Publish(event.Event{Topic: event.TopicViewportChange, Payload: v})
	s.scheduleFlush()
}

// ForgetOverlay drops an overlay's runtime entry entirely, for overlays
// removed from the catalog at runtime. No event fires; the removal itself
// is announced by the caller through its own channel.
func (s *Store) ForgetOverlay(id string) {
	s.mu.Lock()
	_, ok := s.overlays[id]
	delete(s.overlays, id)
	s.mu.Unlock()

	if ok {
		s.scheduleFlush()
	}
}

// Restore loads the persisted blob. Persisted ids absent from the known
// sets are dropped silently; when any were dropped the store schedules a
// flush so the next write purges them from the blob. A missing or
// unreadable blob leaves the store empty.
func (s *Store) Restore(ctx context.Context, knownOverlays, knownGroups map[string]bool) {
	var blob types.PersistedState
	if err := s.backend.Get(ctx, s.path(), &blob); err != nil {
		if err != storage.ErrNotFound {
			s.log.Warn().Err(err).Msg("ignoring unreadable persisted state")
		}
		return
	}

	var stale []string

	s.mu.Lock()
	s.base = blob.Base
	if blob.Viewport != nil {
		v := *blob.Viewport
		s.viewport = &v
	}
	for id, st := range blob.Overlays {
		if !knownOverlays[id] {
			stale = append(stale, id)
			continue
		}
		st.Opacity = types.ClampOpacity(st.Opacity)
		s.overlays[id] = st
	}
	for id, st := range blob.Groups {
		if !knownGroups[id] {
			stale = append(stale, id)
			continue
		}
		st.Opacity = types.ClampOpacity(st.Opacity)
		s.groups[id] = st
	}
	s.mu.Unlock()

	if len(stale) > 0 {
		s.log.Debug().Strs("ids", stale).Msg("dropped stale persisted entries")
		s.scheduleFlush()
	}
}

// Clear wipes the persisted blob and all in-memory state, then publishes
// memorycleared. Later touches re-initialize from declared defaults.
func (s *Store) Clear(ctx context.Context) error {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dirty = false
	s.timerMu.Unlock()

	s.mu.Lock()
	s.base = ""
	s.overlays = make(map[string]types.OverlayState)
	s.groups = make(map[string]types.GroupState)
	s.viewport = nil
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.path()); err != nil {
		return err
	}

	s.bus.Publish(event.Event{Topic: event.TopicMemoryCleared, Payload: event.MemoryClearedData{}})
	return nil
}

// scheduleFlush (re)arms the debounce timer.
func (s *Store) scheduleFlush() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.closed {
		return
	}
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(FlushDebounce, s.flushAsync)
}

func (s *Store) flushAsync() {
	s.timerMu.Lock()
	if s.closed {
		s.timerMu.Unlock()
		return
	}
	s.dirty = false
	s.timerMu.Unlock()

	if err := s.writeBlob(context.Background()); err != nil {
		s.timerMu.Lock()
		s.dirty = true
		s.timerMu.Unlock()
		s.log.Warn().Err(err).Msg("state flush failed")
	}
}

// Flush writes the current state synchronously.
func (s *Store) Flush(ctx context.Context) error {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dirty = false
	s.timerMu.Unlock()

	return s.writeBlob(ctx)
}

func (s *Store) writeBlob(ctx context.Context) error {
	blob := s.Snapshot()
	op := func() error {
		return s.backend.Put(ctx, s.path(), blob)
	}
	return backoff.Retry(op, newFlushBackoff(ctx))
}

// Close stops the debounce timer and writes any pending state.
func (s *Store) Close(ctx context.Context) error {
	s.timerMu.Lock()
	if s.closed {
		s.timerMu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.dirty
	s.dirty = false
	s.timerMu.Unlock()

	if !dirty {
		return nil
	}
	return s.writeBlob(ctx)
}
