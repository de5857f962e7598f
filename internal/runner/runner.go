package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"logsweep/internal/config"
	"logsweep/internal/database"
	"logsweep/internal/fsops"
	"logsweep/internal/limiter"
	"logsweep/internal/logging"
	"logsweep/internal/metrics"
	"logsweep/internal/rewrite"
	"logsweep/internal/safety"
	"logsweep/internal/scan"
	"logsweep/internal/strip"
)

// History persists runs and their per-file outcomes.
type History interface {
	StartRun(info database.RunInfo) (int64, error)
	RecordFile(runID int64, rec database.FileRecord) error
	FinishRun(runID int64, totals database.RunTotals, status string) error
}

// Observer receives progress while a run executes.
type Observer interface {
	RootScanned(res scan.RootResult)
	Started(total int)
	FileDone(out rewrite.Outcome)
}

// Options carries the collaborators of a run. Every field is optional.
type Options struct {
	Logger     *zap.Logger
	FileSystem fsops.FileSystem
	History    History
	Observer   Observer
}

// Summary is the result of a run.
type Summary struct {
	Roots       []scan.RootResult
	Target      string
	DryRun      bool
	RunID       int64 // 0 when history is disabled
	Scanned     int
	Succeeded   int
	Failed      int
	Modified    int
	Removed     int
	Outcomes    []rewrite.Outcome
	Duration    time.Duration
	Interrupted bool
}

// OK reports whether every file succeeded and the run was not interrupted.
func (s *Summary) OK() bool {
	return s.Failed == 0 && !s.Interrupted
}

// ModifiedFiles returns the outcomes that removed (or would remove) statements.
func (s *Summary) ModifiedFiles() []rewrite.Outcome {
	var out []rewrite.Outcome
	for _, o := range s.Outcomes {
		if o.Changed() {
			out = append(out, o)
		}
	}
	return out
}

// FailedFiles returns the outcomes counted as failures.
func (s *Summary) FailedFiles() []rewrite.Outcome {
	var out []rewrite.Outcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Totals converts the counters for the history database.
func (s *Summary) Totals() database.RunTotals {
	return database.RunTotals{
		Scanned:   s.Scanned,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Modified:  s.Modified,
		Removed:   s.Removed,
	}
}

func (s *Summary) add(out rewrite.Outcome) {
	s.Outcomes = append(s.Outcomes, out)
	if out.Failed() {
		s.Failed++
		return
	}
	s.Succeeded++
	if out.Changed() {
		s.Modified++
		s.Removed += out.Removed
	}
}

var errNilConfig = errors.New("nil config")

// Run scans the configured roots and rewrites every candidate in order.
// On cancellation it stops before the next file and returns the partial
// summary together with the context error.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Summary, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := cfg.Absolute()
	if err != nil {
		return nil, err
	}

	logger := logging.OrNop(opts.Logger)
	metrics.Init()

	remover := strip.New(cfg.TargetCall)
	summary := &Summary{Target: remover.Target(), DryRun: cfg.DryRun}
	start := time.Now()

	r := &run{cfg: cfg, opts: opts, logger: logger, summary: summary}
	r.startHistory()

	err = r.execute(ctx, remover)

	summary.Duration = time.Since(start)
	metrics.RecordRun(summary.Duration)
	r.finishHistory(err)
	r.exportMetrics()

	logger.Info("run complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("modified", summary.Modified),
		zap.Int("removed", summary.Removed),
		zap.Bool("dry_run", summary.DryRun),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("duration", summary.Duration),
	)

	return summary, err
}

type run struct {
	cfg     *config.Config
	opts    Options
	logger  *zap.Logger
	summary *Summary
}

func (r *run) execute(ctx context.Context, remover *strip.Remover) error {
	scanner := scan.NewScanner(r.cfg.Extensions, r.cfg.SkipDirs, r.logger)
	results, err := scanner.Scan(ctx, r.cfg.Roots)
	if err != nil {
		if ctx.Err() != nil {
			r.summary.Interrupted = true
		}
		return err
	}

	r.summary.Roots = results
	r.summary.Scanned = scan.Total(results)
	for _, res := range results {
		metrics.RecordRootFiles(res.Root, len(res.Candidates))
		if r.opts.Observer != nil {
			r.opts.Observer.RootScanned(res)
		}
	}
	if r.opts.Observer != nil {
		r.opts.Observer.Started(r.summary.Scanned)
	}

	rw := rewrite.New(remover, r.cfg.DryRun, r.logger)
	if r.opts.FileSystem != nil {
		rw.SetFileSystem(r.opts.FileSystem)
	}
	rw.SetValidator(safety.NewValidator(r.cfg.Roots, nil))
	if r.opts.History != nil && r.summary.RunID != 0 {
		rw.SetRecorder(r.opts.History, r.summary.RunID)
	}

	cpu := limiter.NewCPULimiter(r.cfg.ResourceLimits.MaxCPUPercent)

	for _, res := range results {
		for _, cand := range res.Candidates {
			if err := ctx.Err(); err != nil {
				r.summary.Interrupted = true
				return err
			}
			if err := cpu.Throttle(ctx); err != nil {
				r.summary.Interrupted = true
				return err
			}

			out := rw.Process(cand)
			r.summary.add(out)
			if r.opts.Observer != nil {
				r.opts.Observer.FileDone(out)
			}
		}
	}
	return nil
}

func (r *run) startHistory() {
	if r.opts.History == nil {
		return
	}
	id, err := r.opts.History.StartRun(database.RunInfo{
		Roots:      r.cfg.Roots,
		TargetCall: r.summary.Target,
		DryRun:     r.cfg.DryRun,
	})
	if err != nil {
		r.logger.Warn("run history disabled for this run", zap.Error(err))
		return
	}
	r.summary.RunID = id
}

func (r *run) finishHistory(runErr error) {
	if r.opts.History == nil || r.summary.RunID == 0 {
		return
	}

	status := database.StatusCompleted
	switch {
	case r.summary.Interrupted:
		status = database.StatusCancelled
	case runErr != nil:
		status = database.StatusFailed
	}

	if err := r.opts.History.FinishRun(r.summary.RunID, r.summary.Totals(), status); err != nil {
		r.logger.Error("failed to finish run history", zap.Int64("run_id", r.summary.RunID), zap.Error(err))
	}
}

func (r *run) exportMetrics() {
	path := r.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		r.logger.Error("failed to export metrics", zap.String("path", path), zap.Error(err))
	}
}
