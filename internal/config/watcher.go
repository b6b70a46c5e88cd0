package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the bursts of write events editors produce when
// saving a file.
const reloadDebounce = 100 * time.Millisecond

// ReloadHandler receives the freshly loaded configuration after the watched
// file changes.
type ReloadHandler func(cfg *Config)

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	mu sync.Mutex

	path    string
	watcher *fsnotify.Watcher
	handler ReloadHandler
	log     *slog.Logger

	timer  *time.Timer
	closed bool
	done   chan struct{}
}

// WatchFile starts watching a config file for changes. The handler runs on
// the watcher's goroutine after each successful reload; load failures are
// logged and the previous configuration stays in effect.
func WatchFile(path string, handler ReloadHandler, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, and watching the
	// file directly loses the watch after the first rename.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	w.mu.Unlock()
	return w.watcher.Close()
}

// loop consumes fsnotify events for the watched file.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Debug("config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces rapid event bursts into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

// reload loads the file and hands the result to the handler.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	closed := w.closed
	handler := w.handler
	w.mu.Unlock()

	if !closed && handler != nil {
		handler(cfg)
	}
}
