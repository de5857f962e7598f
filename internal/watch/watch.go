// Package watch re-sweeps files under the configured roots as they change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"logsweep/internal/config"
	"logsweep/internal/logging"
	"logsweep/internal/metrics"
	"logsweep/internal/rewrite"
	"logsweep/internal/safety"
	"logsweep/internal/scan"
	"logsweep/internal/strip"
)

var errNothingToWatch = errors.New("none of the roots exist")

// Handler receives the outcome of every file swept after a change.
type Handler func(out rewrite.Outcome)

// Options configures a Watcher. Every field is optional.
type Options struct {
	Logger  *zap.Logger
	Handler Handler
}

type watchedRoot struct {
	path string
	file bool
}

type pendingFile struct {
	root string
	due  time.Time
}

// Watcher owns an fsnotify watcher over every non-skipped directory of the
// roots. A file is swept once no change has been seen for the debounce period.
type Watcher struct {
	scanner  *scan.Scanner
	rewriter *rewrite.Rewriter
	roots    []watchedRoot
	debounce time.Duration
	textfile string
	logger   *zap.Logger
	handler  Handler

	fsw     *fsnotify.Watcher
	pending map[string]pendingFile
}

// New registers the roots with a new fsnotify watcher. Missing roots are
// logged and skipped; it fails when none remain.
func New(cfg *config.Config, opts Options) (*Watcher, error) {
	logger := logging.OrNop(opts.Logger).Named("watch")

	cfg, err := cfg.Absolute()
	if err != nil {
		return nil, err
	}

	rw := rewrite.New(strip.New(cfg.TargetCall), cfg.DryRun, logger)
	rw.SetValidator(safety.NewValidator(cfg.Roots, nil))

	debounce := cfg.Watch.Debounce
	if debounce <= 0 {
		debounce = config.DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		scanner:  scan.NewScanner(cfg.Extensions, cfg.SkipDirs, logger),
		rewriter: rw,
		debounce: debounce,
		textfile: cfg.Metrics.TextfilePath,
		logger:   logger,
		handler:  opts.Handler,
		fsw:      fsw,
		pending:  make(map[string]pendingFile),
	}

	for _, root := range cfg.Roots {
		info, err := os.Stat(root)
		if err != nil {
			logger.Warn("root not watched", zap.String("root", root), zap.Error(err))
			continue
		}
		if !info.IsDir() {
			if err := fsw.Add(filepath.Dir(root)); err != nil {
				logger.Warn("root not watched", zap.String("root", root), zap.Error(err))
				continue
			}
			w.roots = append(w.roots, watchedRoot{path: root, file: true})
			continue
		}
		w.roots = append(w.roots, watchedRoot{path: root})
		w.addTree(root, root, time.Time{}, false)
	}

	if len(w.roots) == 0 {
		_ = fsw.Close()
		return nil, errNothingToWatch
	}
	return w, nil
}

// Roots returns the roots being watched.
func (w *Watcher) Roots() []string {
	out := make([]string, len(w.roots))
	for i, r := range w.roots {
		out[i] = r.path
	}
	return out
}

// Run handles events until ctx is done. Files still waiting for their quiet
// period are dropped. The watcher cannot be reused afterwards.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	w.logger.Info("watching", zap.Strings("roots", w.Roots()), zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopped watching")
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, time.Now())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, now time.Time) {
	root, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, ev.Name)
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Lstat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// files may land before the new directory is registered
			w.addTree(root, ev.Name, now, true)
			return
		}
		w.enqueue(root, ev.Name, now)
	case ev.Op&fsnotify.Write != 0:
		w.enqueue(root, ev.Name, now)
	}
}

// rootFor returns the scan root an event path belongs to.
func (w *Watcher) rootFor(path string) (string, bool) {
	for _, r := range w.roots {
		if r.file {
			if path == r.path {
				return filepath.Dir(r.path), true
			}
			continue
		}
		rel, err := filepath.Rel(r.path, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return r.path, true
	}
	return "", false
}

// addTree registers dir and its non-skipped subdirectories. With queue set,
// matching files already present are scheduled too.
func (w *Watcher) addTree(root, dir string, now time.Time, queue bool) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("walk error", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err == nil && rel != "." && w.scanner.ShouldSkip(filepath.ToSlash(rel)) {
				return fs.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("directory not watched", zap.String("path", path), zap.Error(err))
			}
			return nil
		}

		if queue && d.Type().IsRegular() {
			w.enqueue(root, path, now)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("walk failed", zap.String("dir", dir), zap.Error(err))
	}
}

func (w *Watcher) enqueue(root, path string, now time.Time) {
	if !w.scanner.HasExtension(path) {
		return
	}
	w.pending[path] = pendingFile{root: root, due: now.Add(w.debounce)}
}

// flush sweeps every pending file whose quiet period ended by now.
func (w *Watcher) flush(now time.Time) {
	var due []string
	for path, p := range w.pending {
		if !p.due.After(now) {
			due = append(due, path)
		}
	}
	if len(due) == 0 {
		return
	}
	sort.Strings(due)

	swept := 0
	for _, path := range due {
		p := w.pending[path]
		delete(w.pending, path)

		cand, ok := w.scanner.Match(p.root, path)
		if !ok {
			continue
		}
		out := w.rewriter.Process(cand)
		swept++
		if w.handler != nil {
			w.handler(out)
		}
	}

	if swept > 0 && w.textfile != "" {
		if err := metrics.WriteTextfile(w.textfile); err != nil {
			w.logger.Error("failed to export metrics", zap.String("path", w.textfile), zap.Error(err))
		}
	}
}
