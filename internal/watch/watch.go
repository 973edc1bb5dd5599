// Package watch follows template files and reports drift as they change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"playbookctl/internal/core"
	"playbookctl/internal/reconcile"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports drift for templates as they are written.
//
// Directories are watched rather than the files themselves so that editors
// replacing a file via rename keep being followed. A missing destination is
// re-seeded; an existing one is never touched.
type Watcher struct {
	pairs      core.PairSet
	reconciler *reconcile.Reconciler
	logger     *zap.Logger
	debounce   time.Duration

	// OnReport, when set, is called after each drift computation.
	OnReport func(reconcile.DriftReport)
}

func New(pairs core.PairSet, reconciler *reconcile.Reconciler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		pairs:      pairs,
		reconciler: reconciler,
		logger:     logger,
		debounce:   DefaultDebounce,
	}
}

// WithDebounce overrides DefaultDebounce.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run blocks until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	byTemplate := make(map[string]core.TemplatePair, len(w.pairs))
	dirs := map[string]struct{}{}
	for _, pair := range w.pairs {
		tpl := filepath.Clean(pair.Template)
		byTemplate[tpl] = pair
		dirs[filepath.Dir(tpl)] = struct{}{}
	}
	for _, dir := range sortedKeys(dirs) {
		if err := fw.Add(dir); err != nil {
			return &core.IOError{Op: "watch", Path: dir, Err: err}
		}
		w.logger.Info("watching templates", zap.String("dir", dir))
	}

	pending := map[string]time.Time{}
	interval := w.debounce / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			name := filepath.Clean(ev.Name)
			if _, ok := byTemplate[name]; !ok {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending[name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case now := <-tick.C:
			for _, name := range sortedKeys(pending) {
				if now.Sub(pending[name]) < w.debounce {
					continue
				}
				delete(pending, name)
				w.check(byTemplate[name])
			}
		}
	}
}

func (w *Watcher) check(pair core.TemplatePair) {
	report, err := w.reconciler.Drift(pair)
	if err != nil {
		// Typically a template caught mid-replace; the next event retries.
		w.logger.Warn("drift check failed", zap.String("template", pair.Template), zap.Error(err))
		return
	}

	if !report.DestinationExists {
		if _, err := w.reconciler.Ensure(pair); err != nil {
			w.logger.Error("re-seed failed", zap.String("file", pair.Destination), zap.Error(err))
		}
	} else if report.Changed() {
		w.logger.Warn("template changed since the generated file was recorded",
			zap.String("file", pair.Destination),
			zap.String("template", pair.Template),
			zap.String("recorded", report.Recorded.String()),
			zap.String("digest", report.Current.String()))
	} else {
		w.logger.Debug("template unchanged", zap.String("template", pair.Template))
	}

	if w.OnReport != nil {
		w.OnReport(report)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
