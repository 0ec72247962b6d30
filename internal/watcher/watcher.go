// Package watcher lists repository files and reports changes to them.
package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"aider-web/internal/logging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// excludedDirs are directories excluded from listings and watches.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
}

// ChangeCallback is called with the new listing after the set of files
// under a watched directory changed.
type ChangeCallback func(key string, files []string)

// Watcher monitors repository directories for file changes. Each watch is
// registered under a caller-chosen key, usually a session id.
type Watcher struct {
	mu       sync.RWMutex
	watchers map[string]*dirWatcher
	debounce time.Duration
	callback ChangeCallback
	logger   *zap.Logger
}

type dirWatcher struct {
	key       string
	dir       string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}

	mu    sync.Mutex
	timer *time.Timer
	last  []string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the quiet period before a change is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a new file system watcher.
func New(callback ChangeCallback, opts ...Option) *Watcher {
	w := &Watcher{
		watchers: make(map[string]*dirWatcher),
		debounce: defaultDebounce,
		callback: callback,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrNop(w.logger)
	return w
}

// Watch starts watching dir under key, replacing any previous watch for key.
func (w *Watcher) Watch(key, dir string) error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dw := &dirWatcher{
		key:       key,
		dir:       dir,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
		last:      ListFiles(dir),
	}

	if err := addDirsRecursive(fsW, dir); err != nil {
		fsW.Close()
		return err
	}

	w.Unwatch(key)
	w.mu.Lock()
	w.watchers[key] = dw
	w.mu.Unlock()

	go w.watchLoop(dw)

	w.logger.Debug("watching repository", zap.String("key", key), zap.String("dir", dir))
	return nil
}

// Unwatch stops watching the directory registered under key.
func (w *Watcher) Unwatch(key string) {
	w.mu.Lock()
	dw, ok := w.watchers[key]
	if ok {
		delete(w.watchers, key)
	}
	w.mu.Unlock()

	if ok {
		close(dw.cancel)
		dw.fsWatcher.Close()
		<-dw.done
	}
}

// Watching reports whether a watch is registered under key.
func (w *Watcher) Watching(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.watchers[key]
	return ok
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(dw *dirWatcher) {
	defer close(dw.done)
	defer dw.stopTimer()

	for {
		select {
		case <-dw.cancel:
			return

		case event, ok := <-dw.fsWatcher.Events:
			if !ok {
				return
			}

			// New directories are watched too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					base := filepath.Base(event.Name)
					if !excludedDirs[base] && !isHidden(base) {
						if err := dw.fsWatcher.Add(event.Name); err != nil {
							w.logger.Warn("watch new directory", zap.String("dir", event.Name), zap.Error(err))
						}
					}
				}
			}

			dw.mu.Lock()
			if dw.timer != nil {
				dw.timer.Stop()
			}
			dw.timer = time.AfterFunc(w.debounce, func() {
				w.rescan(dw)
			})
			dw.mu.Unlock()

		case err, ok := <-dw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.String("key", dw.key), zap.Error(err))
		}
	}
}

func (dw *dirWatcher) stopTimer() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
}

// rescan relists the directory and notifies if the file set changed.
func (w *Watcher) rescan(dw *dirWatcher) {
	select {
	case <-dw.cancel:
		return
	default:
	}

	files := ListFiles(dw.dir)

	dw.mu.Lock()
	changed := !slices.Equal(files, dw.last)
	if changed {
		dw.last = files
	}
	dw.mu.Unlock()

	if changed && w.callback != nil {
		w.logger.Debug("repository changed", zap.String("key", dw.key), zap.Int("files", len(files)))
		w.callback(dw.key, files)
	}
}

// ListFiles returns the non-excluded files under dir as slash-separated
// paths relative to dir, in lexical order.
func ListFiles(dir string) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths.
		}

		name := d.Name()

		if d.IsDir() {
			if path == dir {
				return nil
			}
			if excludedDirs[name] || isHidden(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if isHidden(name) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	keys := make([]string, 0, len(w.watchers))
	for key := range w.watchers {
		keys = append(keys, key)
	}
	w.mu.Unlock()

	for _, key := range keys {
		w.Unwatch(key)
	}
}

// addDirsRecursive adds a directory and its subdirectories to an fsnotify watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if path != dir && (excludedDirs[name] || isHidden(name)) {
			return filepath.SkipDir
		}

		return w.Add(path)
	})
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
