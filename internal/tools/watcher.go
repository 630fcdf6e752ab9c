package tools

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hearthfire/hearth/internal/observability"
)

// watchDebounce coalesces bursts of filesystem events per path. Editors
// commonly emit several writes for one save.
const watchDebounce = 200 * time.Millisecond

// Watcher hot-reloads user skill files: a create or modify drops and
// re-registers the definition, a removal unregisters it. Reloads become
// observable to lookups within the debounce window plus parse time.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *observability.Logger

	mu       sync.Mutex
	byPath   map[string]string // path -> registered tool name
	pending  map[string]*time.Timer
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a watcher for the user-tool directory.
func NewWatcher(dir string, registry *Registry, logger *observability.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		registry: registry,
		logger:   logger,
		byPath:   map[string]string{},
		pending:  map[string]*time.Timer{},
	}
}

// Start begins watching until ctx is cancelled. The initial directory
// load is the caller's responsibility (LoadDir); Start only tracks
// changes from here on.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	// Seed the path->name map from definitions already on disk.
	for _, def := range w.registry.List() {
		w.byPath[SkillPath(w.dir, def.Name)] = def.Name
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn(ctx, "skill watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isSkillFile(filepath.Base(event.Name)) {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounce(event.Name, func() { w.reload(ctx, event.Name) })
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.debounce(event.Name, func() { w.remove(ctx, event.Name) })
	}
}

// debounce schedules fn once per quiet period for a path.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		fn()
	})
}

func (w *Watcher) reload(ctx context.Context, path string) {
	def, err := ParseSkillFile(path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn(ctx, "skill file rejected", "path", path, "error", err)
		}
		return
	}

	w.mu.Lock()
	previous := w.byPath[path]
	w.byPath[path] = def.Name
	w.mu.Unlock()

	// A rename inside the file drops the old registration first.
	if previous != "" && previous != def.Name {
		_ = w.registry.Unregister(previous)
	}
	if err := w.registry.Replace(*def); err != nil {
		if w.logger != nil {
			w.logger.Warn(ctx, "skill reload failed", "tool", def.Name, "error", err)
		}
		return
	}
	if w.logger != nil {
		w.logger.Info(ctx, "skill reloaded", "tool", def.Name, "path", path)
	}
}

func (w *Watcher) remove(ctx context.Context, path string) {
	w.mu.Lock()
	name := w.byPath[path]
	delete(w.byPath, path)
	w.mu.Unlock()

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), skillFileExt)
	}
	if err := w.registry.Unregister(name); err == nil && w.logger != nil {
		w.logger.Info(ctx, "skill unloaded", "tool", name, "path", path)
	}
}
