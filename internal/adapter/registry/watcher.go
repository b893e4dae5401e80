package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thushan/llamatap/internal/logger"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher triggers a reload when a watched config file changes. Parent directories are
// watched rather than the files so editors that replace files by rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *logger.StyledLogger
	targets  map[string]func() error
	timers   map[string]*time.Timer
	dirs     map[string]struct{}
	debounce time.Duration
	mu       sync.Mutex
	closed   bool
}

func NewWatcher(log *logger.StyledLogger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  fw,
		logger:   log,
		debounce: debounce,
		targets:  make(map[string]func() error),
		timers:   make(map[string]*time.Timer),
		dirs:     make(map[string]struct{}),
	}, nil
}

// Add registers onChange for path, which need not exist yet
func (w *Watcher) Add(path string, onChange func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.targets[abs] = onChange
	dir := filepath.Dir(abs)
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.dirs[dir] = struct{}{}
	return nil
}

// Run blocks until ctx is cancelled or the watcher is closed
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.schedule(filepath.Clean(event.Name), event.Op)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(path string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	onChange, ok := w.targets[path]
	if !ok || w.closed {
		return
	}

	if timer, pending := w.timers[path]; pending {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		w.logger.Info("Config file changed, reloading", "path", path, "op", op.String())
		if err := onChange(); err != nil {
			w.logger.Error("Reload failed", "path", path, "error", err)
		}
	})
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
