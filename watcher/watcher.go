// Package watcher invalidates the config cache when files under an app
// directory change, so edits take effect without waiting for the TTL.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modserver"
)

// DefaultDebounce collapses bursts of file events into one invalidation.
const DefaultDebounce = 100 * time.Millisecond

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("watcher already started")

// Invalidator drops cached configuration. *modserver.Runtime implements it.
type Invalidator interface {
	InvalidateCache()
}

// Watcher watches the app directory, the resources directory and every
// resource directory.
type Watcher struct {
	basePath string
	target   Invalidator
	logger   modserver.Logger
	debounce time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending *time.Timer
	stopCh  chan struct{}
	done    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before invalidating.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(logger modserver.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a Watcher for basePath that invalidates target.
func New(basePath string, target Invalidator, opts ...Option) *Watcher {
	w := &Watcher{
		basePath: filepath.Clean(basePath),
		target:   target,
		logger:   modserver.NopLogger(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the initial watches are in place;
// events are handled until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.basePath); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.fsw = fsw
	w.addResources()

	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(ctx, fsw, w.stopCh, w.done)

	w.logger.Info("Watching app directory for changes", "path", w.basePath)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	fsw, done := w.detach()
	if fsw == nil {
		return
	}
	<-done
	_ = fsw.Close()
	w.logger.Info("Stopped watching app directory", "path", w.basePath)
}

// detach marks the watcher stopped and returns what is left to release.
func (w *Watcher) detach() (*fsnotify.Watcher, chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fsw := w.fsw
	if fsw == nil {
		return nil, nil
	}
	w.fsw = nil
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	close(w.stopCh)
	return fsw, w.done
}

func (w *Watcher) resourcesDir() string {
	return filepath.Join(w.basePath, modserver.ResourcesDir)
}

// addResources watches the resources directory and its subdirectories.
// Callers hold w.mu.
func (w *Watcher) addResources() {
	dir := w.resourcesDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	w.add(dir)
	for _, e := range entries {
		if e.IsDir() {
			w.add(filepath.Join(dir, e.Name()))
		}
	}
}

func (w *Watcher) add(path string) {
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("Failed to watch directory", "path", path, "error", err)
	}
}

func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", "error", err)

		case <-ctx.Done():
			if detached, _ := w.detach(); detached != nil {
				defer detached.Close()
			}
			return

		case <-stopCh:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	w.logger.Debug("App file changed", "event", event.Op.String(), "file", event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}

	// New directories under resources need their own watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			switch filepath.Dir(event.Name) {
			case w.basePath:
				if event.Name == w.resourcesDir() {
					w.addResources()
				}
			case w.resourcesDir():
				w.add(event.Name)
			}
		}
	}

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	w.logger.Info("App files changed, invalidating config cache", "path", w.basePath)
	w.target.InvalidateCache()
}
