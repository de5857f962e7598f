package rewrite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"logsweep/internal/database"
	"logsweep/internal/fsops"
	"logsweep/internal/metrics"
	"logsweep/internal/safety"
	"logsweep/internal/scan"
	"logsweep/internal/strip"
)

func init() {
	metrics.Init()
}

const withLogs = "import x from 'y';\nconsole.log('a');\nfoo();\nconsole.log(\n  1,\n  2\n);\nbar();\n"

func candidate(root, rel string) scan.Candidate {
	return scan.Candidate{
		Root:    root,
		Path:    filepath.Join(root, rel),
		RelPath: rel,
		Mode:    0o644,
	}
}

func newTestRewriter(t *testing.T, root string, dryRun bool, fs fsops.FileSystem) *Rewriter {
	t.Helper()
	rw := New(strip.New(strip.DefaultTarget), dryRun, nil)
	rw.SetFileSystem(fs)
	rw.SetValidator(safety.NewValidator([]string{root}, nil))
	return rw
}

type fakeRecorder struct {
	runIDs  []int64
	records []database.FileRecord
	err     error
}

func (f *fakeRecorder) RecordFile(runID int64, rec database.FileRecord) error {
	f.runIDs = append(f.runIDs, runID)
	f.records = append(f.records, rec)
	return f.err
}

// TestDryRunNeverWrites proves the dry-run contract:
// When dryRun=true, ZERO write calls must occur
func TestDryRunNeverWrites(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "app.ts")
	fake := fsops.NewFakeFS(map[string]string{cand.Path: withLogs})

	before := testutil.ToFloat64(metrics.FilesProcessedTotal.WithLabelValues(ActionDryRun))

	out := newTestRewriter(t, tmpDir, true, fake).Process(cand)

	if out.Action != ActionDryRun {
		t.Fatalf("Expected action %s, got %s (err=%v)", ActionDryRun, out.Action, out.Err)
	}
	if out.Removed != 2 {
		t.Errorf("Expected 2 statements reported, got %d", out.Removed)
	}
	if out.LinesRemoved != 5 {
		t.Errorf("Expected 5 lines reported, got %d", out.LinesRemoved)
	}
	if !out.Changed() || out.Failed() {
		t.Errorf("Dry run with removals should be changed and not failed")
	}

	// DRY-RUN CONTRACT: Assert ZERO write calls occurred
	if writes := fake.Writes(); len(writes) != 0 {
		t.Errorf("DRY-RUN VIOLATION: Expected 0 write calls, got %d: %v", len(writes), writes)
	}
	if string(fake.Files[cand.Path]) != withLogs {
		t.Errorf("DRY-RUN VIOLATION: file content changed")
	}

	after := testutil.ToFloat64(metrics.FilesProcessedTotal.WithLabelValues(ActionDryRun))
	if after-before != 1 {
		t.Errorf("Expected DRY_RUN counter to grow by 1, grew by %v", after-before)
	}
}

// TestRealModeWritesChangedFile proves that non-dry-run mode DOES write
func TestRealModeWritesChangedFile(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "src/app.ts")
	fake := fsops.NewFakeFS(map[string]string{cand.Path: withLogs})

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionModified {
		t.Fatalf("Expected action %s, got %s (err=%v)", ActionModified, out.Action, out.Err)
	}

	writes := fake.Writes()
	if len(writes) != 1 || writes[0] != "write:"+cand.Path {
		t.Fatalf("Expected one write to %s, got %v", cand.Path, writes)
	}

	want := "import x from 'y';\nfoo();\nbar();\n"
	if got := string(fake.Files[cand.Path]); got != want {
		t.Errorf("Rewritten content = %q, want %q", got, want)
	}
	if out.BytesBefore != int64(len(withLogs)) || out.BytesAfter != int64(len(want)) {
		t.Errorf("Unexpected byte counts %d -> %d", out.BytesBefore, out.BytesAfter)
	}
	if len(out.Spans) != 2 || out.Spans[1] != (strip.Span{Start: 3, End: 6}) {
		t.Errorf("Unexpected spans: %v", out.Spans)
	}
}

// TestUnchangedFileNeverWritten proves files without removals are not opened for writing
func TestUnchangedFileNeverWritten(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "clean.ts")
	content := "const a = 1;\nx = 1; console.log(y);\nconsole.error('kept');\n"
	fake := fsops.NewFakeFS(map[string]string{cand.Path: content})

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionUnchanged {
		t.Fatalf("Expected action %s, got %s (err=%v)", ActionUnchanged, out.Action, out.Err)
	}
	if out.Removed != 0 || out.Changed() || out.Failed() {
		t.Errorf("Unchanged outcome reports removals or failure: %+v", out)
	}
	if writes := fake.Writes(); len(writes) != 0 {
		t.Errorf("Expected 0 write calls for unchanged file, got %v", writes)
	}
}

// TestUnbalancedFileNeverWritten proves an unterminated call is a no-op
func TestUnbalancedFileNeverWritten(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "broken.js")
	fake := fsops.NewFakeFS(map[string]string{cand.Path: "console.log(\n  'never closed'\n"})

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionUnchanged {
		t.Errorf("Expected action %s, got %s", ActionUnchanged, out.Action)
	}
	if writes := fake.Writes(); len(writes) != 0 {
		t.Errorf("Expected 0 write calls, got %v", writes)
	}
}

// TestSafetyValidatorBlocksWrite proves validator integration works
func TestSafetyValidatorBlocksWrite(t *testing.T) {
	tmpDir := t.TempDir()
	cand := scan.Candidate{Root: tmpDir, Path: "/etc/passwd", RelPath: "passwd"}
	fake := fsops.NewFakeFS(map[string]string{"/etc/passwd": "console.log(1);\n"})

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionSkip {
		t.Fatalf("Expected action %s, got %s", ActionSkip, out.Action)
	}
	if !errors.Is(out.Err, safety.ErrProtectedPath) {
		t.Errorf("Expected ErrProtectedPath, got %v", out.Err)
	}
	if !out.Failed() {
		t.Errorf("Skipped file should count as failed")
	}
	if writes := fake.Writes(); len(writes) != 0 {
		t.Errorf("SAFETY VIOLATION: Validator should have blocked protected path, but got %v", writes)
	}
}

// TestOutsideRootBlocked proves files outside the allowed roots are skipped
func TestOutsideRootBlocked(t *testing.T) {
	allowed := t.TempDir()
	other := t.TempDir()
	cand := candidate(other, "app.ts")
	fake := fsops.NewFakeFS(map[string]string{cand.Path: withLogs})

	out := newTestRewriter(t, allowed, false, fake).Process(cand)

	if !errors.Is(out.Err, safety.ErrOutsideAllowed) {
		t.Errorf("Expected ErrOutsideAllowed, got %v", out.Err)
	}
	if writes := fake.Writes(); len(writes) != 0 {
		t.Errorf("Expected 0 write calls, got %v", writes)
	}
}

func TestInvalidUTF8IsError(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "binary.js")
	fake := fsops.NewFakeFS(map[string]string{cand.Path: "\xff\xfe\nconsole.log(1);\n"})

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionError || !errors.Is(out.Err, ErrInvalidUTF8) {
		t.Errorf("Expected ERROR with ErrInvalidUTF8, got %s %v", out.Action, out.Err)
	}
	if writes := fake.Writes(); len(writes) != 0 {
		t.Errorf("Expected 0 write calls, got %v", writes)
	}
}

func TestReadErrorIsError(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "gone.ts")
	fake := fsops.NewFakeFS(nil)

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionError || !errors.Is(out.Err, os.ErrNotExist) {
		t.Errorf("Expected ERROR with os.ErrNotExist, got %s %v", out.Action, out.Err)
	}
}

func TestWriteErrorIsError(t *testing.T) {
	tmpDir := t.TempDir()
	cand := candidate(tmpDir, "locked.ts")
	fake := fsops.NewFakeFS(map[string]string{cand.Path: withLogs})
	fake.WriteErrs[cand.Path] = os.ErrPermission

	out := newTestRewriter(t, tmpDir, false, fake).Process(cand)

	if out.Action != ActionError || !errors.Is(out.Err, os.ErrPermission) {
		t.Fatalf("Expected ERROR with os.ErrPermission, got %s %v", out.Action, out.Err)
	}
	if out.Changed() {
		t.Errorf("Failed write should not count as changed")
	}
	if string(fake.Files[cand.Path]) != withLogs {
		t.Errorf("Content should be untouched after failed write")
	}
}

func TestRecorderReceivesOutcome(t *testing.T) {
	tmpDir := t.TempDir()
	ok := candidate(tmpDir, "a.ts")
	bad := candidate(tmpDir, "b.ts")
	fake := fsops.NewFakeFS(map[string]string{ok.Path: withLogs})

	rec := &fakeRecorder{err: errors.New("disk full")}
	rw := newTestRewriter(t, tmpDir, false, fake)
	rw.SetRecorder(rec, 7)

	// a recorder failure must not change the outcome
	if out := rw.Process(ok); out.Action != ActionModified {
		t.Fatalf("Expected %s, got %s (err=%v)", ActionModified, out.Action, out.Err)
	}
	rw.Process(bad)

	if len(rec.records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(rec.records))
	}
	for _, id := range rec.runIDs {
		if id != 7 {
			t.Errorf("Expected run id 7, got %d", id)
		}
	}

	first := rec.records[0]
	if first.Action != ActionModified || first.Removed != 2 || first.LinesRemoved != 5 || first.Root != tmpDir {
		t.Errorf("Unexpected first record: %+v", first)
	}
	if first.ErrorMessage != "" {
		t.Errorf("Expected empty error message, got %q", first.ErrorMessage)
	}

	second := rec.records[1]
	if second.Action != ActionError || second.ErrorMessage == "" {
		t.Errorf("Unexpected second record: %+v", second)
	}
}

// TestRealFilesystemPreservesMode runs against the real filesystem
func TestRealFilesystemPreservesMode(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "server.mjs")
	if err := os.WriteFile(path, []byte("console.log('boot');\nlisten();\n"), 0o600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	cand := scan.Candidate{Root: tmpDir, Path: path, RelPath: "server.mjs", Mode: 0o600}
	rw := New(nil, false, nil)
	rw.SetValidator(safety.NewValidator([]string{tmpDir}, nil))

	out := rw.Process(cand)
	if out.Action != ActionModified {
		t.Fatalf("Expected %s, got %s (err=%v)", ActionModified, out.Action, out.Err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read rewritten file: %v", err)
	}
	if string(data) != "listen();\n" {
		t.Errorf("Rewritten content = %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %o", info.Mode().Perm())
	}
}
