// Package watcher re-runs organize when documents appear in a folder.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuietPeriod is how long the folder must stay unchanged before a run.
const DefaultQuietPeriod = 5 * time.Second

// RunFunc processes the folder. changed lists the base names that triggered the run.
type RunFunc func(ctx context.Context, changed []string) error

// Options configures a Watcher.
type Options struct {
	Folder      string
	Extensions  []string
	QuietPeriod time.Duration
	// RunOnStart triggers a run before any event arrives.
	RunOnStart bool
}

// Watcher debounces create and write events of matching files in a single
// folder (non-recursive) and calls run once the folder has been quiet.
type Watcher struct {
	opts Options
	run  RunFunc
}

func New(opts Options, run RunFunc) *Watcher {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	exts := make([]string, len(opts.Extensions))
	for i, e := range opts.Extensions {
		exts[i] = strings.ToLower(e)
	}
	opts.Extensions = exts
	return &Watcher{opts: opts, run: run}
}

// Run blocks until ctx is cancelled. Errors from run are logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	folder, err := filepath.Abs(w.opts.Folder)
	if err != nil {
		return fmt.Errorf("resolve folder: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(folder); err != nil {
		return fmt.Errorf("watch %s: %w", folder, err)
	}
	slog.Info("watching folder", "folder", folder, "quiet", w.opts.QuietPeriod)

	if w.opts.RunOnStart {
		w.trigger(ctx, nil)
	}

	timer := time.NewTimer(w.opts.QuietPeriod)
	timer.Stop()
	defer timer.Stop()
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("file event", "file", ev.Name, "op", ev.Op.String())
			pending[filepath.Base(ev.Name)] = struct{}{}
			timer.Reset(w.opts.QuietPeriod)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			w.trigger(ctx, changed)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context, changed []string) {
	if ctx.Err() != nil {
		return
	}
	if err := w.run(ctx, changed); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("watch run failed", "changed", len(changed), "error", err)
	}
}

// relevant reports create, write and rename events of matching files.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
