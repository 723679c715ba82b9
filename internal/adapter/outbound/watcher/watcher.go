// Package watcher observes the writable rules directory and triggers
// debounced reloads on a dedicated serial goroutine.
package watcher

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is how long the watcher waits after the last filesystem
// event before triggering a reload, so a delete-then-create-then-write
// burst from a tool swapping a file collapses into one reload.
const DebounceDelay = 250 * time.Millisecond

// relevantOps are the filesystem events that can change the rule set:
// creation, moves in either direction, writes, and deletion.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watcher monitors one directory for changes to .xml files. Reload
// callbacks run one at a time on a single goroutine; the loader behind
// them is therefore never re-entrant.
type Watcher struct {
	fs      *fsnotify.Watcher
	reload  func()
	logger  *slog.Logger
	trigger chan struct{}
	wg      sync.WaitGroup

	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the debounce delay. Tests use this to keep the
// clock short; production uses the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New starts watching dir. Each burst of .xml events schedules one call
// to reload after the debounce delay.
func New(dir string, reload func(), logger *slog.Logger, opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		fs:       fs,
		reload:   reload,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		debounce: DebounceDelay,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(2)
	go w.watchLoop()
	go w.reloadLoop()
	return w, nil
}

// Close stops watching and waits for both loops to exit. Any reload in
// flight completes first; a pending debounce is dropped.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

// watchLoop consumes filesystem events and debounces them into trigger
// posts. It runs on the watcher's own thread and never parses anything.
func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	defer close(w.trigger)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&relevantOps == 0 || !strings.HasSuffix(ev.Name, ".xml") {
				continue
			}
			// A new event cancels any pending reload and restarts
			// the debounce clock.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			// Capacity-1 channel: a reload already pending absorbs
			// this trigger.
			select {
			case w.trigger <- struct{}{}:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("rules directory watcher error", "error", err)
		}
	}
}

// reloadLoop is the dedicated serial executor for reloads.
func (w *Watcher) reloadLoop() {
	defer w.wg.Done()
	for range w.trigger {
		w.reload()
	}
}
