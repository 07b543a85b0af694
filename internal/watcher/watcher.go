// Package watcher reloads the overlay catalog when its file changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
	"github.com/drecchia/maplibre-layerlibre/internal/control"
	"github.com/drecchia/maplibre-layerlibre/internal/logging"
)

// ReloadDebounce is how long the file must stay quiet before a reload.
// Editors and atomic-save tools produce bursts of events per save.
const ReloadDebounce = 500 * time.Millisecond

// Watcher monitors a catalog file and applies changes through the control.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	pattern  string
	control  *control.Control
	debounce time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
	timer   *time.Timer

	log zerolog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPattern widens the trigger to any file in the catalog's directory
// matching the glob, useful for split catalogs. Reload still parses the
// configured path.
func WithPattern(glob string) Option {
	return func(w *Watcher) { w.pattern = glob }
}

// WithDebounce overrides the reload debounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for the given catalog path.
func New(path string, ctrl *control.Control, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors that save via rename
	// replace the inode and a file watch silently dies with it.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		path:     abs,
		pattern:  filepath.Base(abs),
		control:  ctrl,
		debounce: ReloadDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      logging.Component("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching for catalog changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.matches(ev.Name) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("catalog watcher error")
		}
	}
}

// matches reports whether an event path belongs to the watched catalog.
func (w *Watcher) matches(name string) bool {
	matched, err := doublestar.Match(w.pattern, filepath.Base(name))
	if err != nil {
		return false
	}
	return matched
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload parses the catalog and applies the diff. A file that fails to
// parse or validate leaves the running configuration untouched.
func (w *Watcher) reload() {
	cat, err := config.LoadCatalog(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("catalog reload rejected")
		return
	}

	if err := w.control.ReloadCatalog(context.Background(), cat); err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("catalog reload partially applied")
		return
	}

	w.log.Info().
		Str("path", w.path).
		Int("baseStyles", len(cat.BaseStyles)).
		Int("overlays", len(cat.Overlays)).
		Msg("catalog reloaded")
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.stopCh:
		// Already stopped
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
