package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a burst of file events is collapsed for.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-runs a function whenever a set of files changes. Runs never
// overlap: changes seen during a run are coalesced into one follow-up run.
type Watcher struct {
	paths    []string
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher watches paths. Their parent directories are watched so editors
// that replace files by rename are noticed.
func NewWatcher(paths []string, debounce time.Duration, logger zerolog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		paths:    paths,
		debounce: debounce,
		logger:   logger.With().Str("component", "watcher").Logger(),
	}
}

// Run calls fn once immediately and again after every change until ctx is
// done. Errors from fn are logged and do not stop watching.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(w.paths))
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	// Capacity one: a pending trigger absorbs every later one until the
	// run loop takes it.
	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	go w.processEvents(ctx, watcher, targets, trigger)

	w.logger.Info().Strs("paths", w.paths).Msg("Watching for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
			if err := fn(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Run failed")
			}
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Info().Msg("Waiting for changes")
		}
	}
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, targets map[string]bool, trigger chan<- struct{}) {
	var timer *time.Timer
	fire := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("File changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, fire)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
