package rewrite

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"logsweep/internal/database"
	"logsweep/internal/fsops"
	"logsweep/internal/logging"
	"logsweep/internal/metrics"
	"logsweep/internal/safety"
	"logsweep/internal/scan"
	"logsweep/internal/strip"
)

// Outcome actions
const (
	ActionModified  = "MODIFIED"
	ActionUnchanged = "UNCHANGED"
	ActionDryRun    = "DRY_RUN"
	ActionSkip      = "SKIP"
	ActionError     = "ERROR"
)

// ErrInvalidUTF8 is returned for files that are not valid UTF-8 text.
var ErrInvalidUTF8 = errors.New("file is not valid UTF-8")

// Outcome is the result of processing one candidate file.
type Outcome struct {
	Candidate    scan.Candidate
	Action       string
	Removed      int
	LinesRemoved int
	Spans        []strip.Span
	BytesBefore  int64
	BytesAfter   int64
	Err          error
}

// Failed reports whether the file counts as a failure for the run.
func (o Outcome) Failed() bool {
	return o.Action == ActionSkip || o.Action == ActionError
}

// Changed reports whether statements were (or in a dry run would be) removed.
func (o Outcome) Changed() bool {
	return o.Removed > 0 && !o.Failed()
}

// Recorder stores per-file outcomes, typically *database.HistoryDB.
type Recorder interface {
	RecordFile(runID int64, rec database.FileRecord) error
}

// Rewriter applies a Remover to candidate files in place.
type Rewriter struct {
	remover   *strip.Remover
	fs        fsops.FileSystem
	validator *safety.Validator
	dryRun    bool
	logger    *zap.Logger

	recorder Recorder
	runID    int64
}

// New creates a Rewriter writing through the real filesystem.
func New(remover *strip.Remover, dryRun bool, logger *zap.Logger) *Rewriter {
	if remover == nil {
		remover = strip.New(strip.DefaultTarget)
	}
	return &Rewriter{
		remover: remover,
		fs:      fsops.OSFS{},
		dryRun:  dryRun,
		logger:  logging.OrNop(logger),
	}
}

// SetFileSystem allows injecting a filesystem (for testing)
func (r *Rewriter) SetFileSystem(fs fsops.FileSystem) {
	r.fs = fs
}

// SetValidator sets the safety validator checked before every read
func (r *Rewriter) SetValidator(v *safety.Validator) {
	r.validator = v
}

// SetRecorder records every outcome under runID
func (r *Rewriter) SetRecorder(rec Recorder, runID int64) {
	r.recorder = rec
	r.runID = runID
}

// Process reads one candidate, removes target statements and writes the
// file back only when something was removed outside a dry run.
func (r *Rewriter) Process(cand scan.Candidate) Outcome {
	out := r.process(cand)

	bytesRemoved := int64(0)
	if out.Action == ActionModified {
		bytesRemoved = out.BytesBefore - out.BytesAfter
	}
	metrics.RecordOutcome(out.Action, out.Removed, bytesRemoved)

	r.log(out)
	r.record(out)
	return out
}

func (r *Rewriter) process(cand scan.Candidate) Outcome {
	out := Outcome{Candidate: cand}

	if r.validator != nil {
		if err := r.validator.ValidateWriteTarget(cand.Path); err != nil {
			out.Action = ActionSkip
			out.Err = fmt.Errorf("unsafe path: %w", err)
			return out
		}
	}

	data, err := r.fs.ReadFile(cand.Path)
	if err != nil {
		out.Action = ActionError
		out.Err = err
		return out
	}
	out.BytesBefore = int64(len(data))
	out.BytesAfter = out.BytesBefore

	if !utf8.Valid(data) {
		out.Action = ActionError
		out.Err = ErrInvalidUTF8
		return out
	}

	res := r.remover.Remove(string(data))
	if !res.Changed() {
		out.Action = ActionUnchanged
		return out
	}

	out.Removed = res.Removed
	out.Spans = res.Spans
	for _, span := range res.Spans {
		out.LinesRemoved += span.Lines()
	}
	out.BytesAfter = int64(len(res.Text))

	if r.dryRun {
		out.Action = ActionDryRun
		return out
	}

	perm := cand.Mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	if err := r.fs.WriteFile(cand.Path, []byte(res.Text), perm); err != nil {
		out.Action = ActionError
		out.Err = err
		out.BytesAfter = out.BytesBefore
		return out
	}

	out.Action = ActionModified
	return out
}

func (r *Rewriter) log(out Outcome) {
	fields := []zap.Field{
		zap.String("action", out.Action),
		zap.String("path", out.Candidate.Path),
	}

	switch out.Action {
	case ActionModified, ActionDryRun:
		r.logger.Info("statements removed", append(fields,
			zap.Int("removed", out.Removed),
			zap.Int("lines_removed", out.LinesRemoved),
			zap.Int64("bytes_before", out.BytesBefore),
			zap.Int64("bytes_after", out.BytesAfter),
		)...)
	case ActionSkip:
		r.logger.Warn("file skipped", append(fields, zap.Error(out.Err))...)
	case ActionError:
		r.logger.Error("file failed", append(fields, zap.Error(out.Err))...)
	default:
		r.logger.Debug("file unchanged", fields...)
	}
}

func (r *Rewriter) record(out Outcome) {
	if r.recorder == nil {
		return
	}

	rec := database.FileRecord{
		Timestamp:    time.Now().UTC(),
		Action:       out.Action,
		Root:         out.Candidate.Root,
		Path:         out.Candidate.Path,
		Removed:      out.Removed,
		LinesRemoved: out.LinesRemoved,
		BytesBefore:  out.BytesBefore,
		BytesAfter:   out.BytesAfter,
	}
	if out.Err != nil {
		rec.ErrorMessage = out.Err.Error()
	}

	// a history failure never fails the file
	if err := r.recorder.RecordFile(r.runID, rec); err != nil {
		r.logger.Error("failed to record file result",
			zap.String("path", out.Candidate.Path),
			zap.Error(err),
		)
	}
}

