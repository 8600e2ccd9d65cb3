package realtime

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches the burst of writes the recorder makes on each commit
const DefaultDebounce = 500 * time.Millisecond

// DatabaseWatcher reports changes to the recorder database file and its journals.
// The directory is watched rather than the file so that a replaced file is still seen.
type DatabaseWatcher struct {
	dir      string
	names    map[string]struct{}
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewDatabaseWatcher watches path. onChange runs once per debounce window that saw a change.
func NewDatabaseWatcher(path string, debounce time.Duration, onChange func(), logger *slog.Logger) (*DatabaseWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	return &DatabaseWatcher{
		dir: filepath.Dir(path),
		names: map[string]struct{}{
			base:              {},
			base + "-wal":     {},
			base + "-journal": {},
		},
		watcher:  watcher,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is registered.
func (w *DatabaseWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *DatabaseWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *DatabaseWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if _, watched := w.names[filepath.Base(event.Name)]; !watched {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			}

		case <-timerC:
			timer, timerC = nil, nil
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("database watcher error", "dir", w.dir, "error", err)
		}
	}
}
