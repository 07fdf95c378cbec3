// Package watch reports edits to a fixed set of tap files.
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher monitors files for writes, creations and removals. Events for other
// files in the same directories are ignored.
type Watcher struct {
	Changes <-chan string // path of a changed file

	changes  chan string
	done     chan struct{}
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// New creates a watcher for paths. A debounce of zero uses DefaultDebounce.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("nothing to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	files := make(map[string]bool, len(paths))
	dirSet := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = true
		dirSet[filepath.Dir(abs)] = true
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	ch := make(chan string, 16)
	return &Watcher{
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		files:    files,
		dirs:     dirs,
		debounce: debounce,
		watcher:  fw,
	}, nil
}

// Start begins watching. Directories are watched rather than the files
// themselves so that atomic renames keep being noticed.
func (w *Watcher) Start() error {
	for _, d := range w.dirs {
		if err := w.watcher.Add(d); err != nil {
			w.watcher.Close()
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

func (w *Watcher) loop() {
	defer close(w.done)
	log := logger.Logger()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[filepath.Clean(event.Name)] = time.Now()
			}

		case now := <-ticker.C:
			for file, t := range pending {
				if now.Sub(t) >= w.debounce {
					w.emit(file)
					delete(pending, file)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("file watcher: %v", err)
		}
	}
}

// emit never blocks; an undelivered change is already pending for the reader.
func (w *Watcher) emit(file string) {
	select {
	case w.changes <- file:
	default:
	}
}
