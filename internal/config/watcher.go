package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports changes to a set of files in one directory. It watches the
// directory rather than the files so atomic rename-over writes are seen, and
// falls back to stat polling when fsnotify is unavailable.
type Watcher struct {
	// dir is the directory holding every watched file.
	dir string
	// names is the set of base names that trigger an event.
	names map[string]bool
	// events is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling from the start.
	fsw *fsnotify.Watcher
	// once ensures [Watcher.Close] is idempotent.
	once sync.Once
	// polling is true when the watcher has fallen back to stat-based polling.
	polling atomic.Bool
	// pollInterval is the duration between stat calls in polling mode.
	pollInterval time.Duration
}

// NewWatcher watches the given files, which must share a parent directory.
func NewWatcher(files ...string) (*Watcher, error) {
	return newWatcher(2*time.Second, files...)
}

func newWatcher(pollInterval time.Duration, files ...string) (*Watcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("watcher: no files given")
	}
	dir := filepath.Dir(files[0])
	names := make(map[string]bool, len(files))
	for _, f := range files {
		if filepath.Dir(f) != dir {
			return nil, fmt.Errorf("watcher: %s is not in %s", f, dir)
		}
		names[filepath.Base(f)] = true
	}

	w := &Watcher{
		dir:          dir,
		names:        names,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		slog.Info("cannot watch config directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	go w.watch()
	return w, nil
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when a watched file
// is written, created, renamed into place, or removed.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// watch forwards fsnotify events for watched names. On an fsnotify error it
// switches to polling for the rest of the watcher's life.
func (w *Watcher) watch() {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&relevant != 0 && w.names[filepath.Base(event.Name)] {
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll(w.stamp())
}

// poll stats the watched files and signals when any modification time or
// existence changes. last is the baseline taken before polling started.
func (w *Watcher) poll(last int64) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			cur := w.stamp()
			if cur != last {
				last = cur
				w.notify()
			}
		}
	}
}

// stamp folds the watched files' modification times into one comparable
// value. A missing file contributes zero.
func (w *Watcher) stamp() int64 {
	var sum int64
	for name := range w.names {
		info, err := os.Stat(filepath.Join(w.dir, name))
		if err != nil {
			continue
		}
		sum += info.ModTime().UnixNano() ^ info.Size()
	}
	return sum
}

// notify sends a single coalescing signal.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
