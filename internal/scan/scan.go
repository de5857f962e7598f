package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"logsweep/internal/logging"
)

// Candidate is a script file selected for rewriting.
type Candidate struct {
	Root    string      // Root the file was found under, as configured
	Path    string      // Root joined with RelPath
	RelPath string      // Slash-separated path relative to Root
	Size    int64
	Mode    fs.FileMode
}

// RootResult groups the candidates found under one root.
type RootResult struct {
	Root       string
	Missing    bool // Root does not exist; a warning, not an error
	Candidates []Candidate
	Skipped    int // Directories pruned by the skip-list
}

// Scanner selects files by extension while pruning skip-listed directories.
type Scanner struct {
	Extensions []string
	SkipDirs   []string
	logger     *zap.Logger
	skipSegs   [][]string
}

var errNoRoots = errors.New("no roots to scan")

// NewScanner creates a Scanner. Extensions are suffixes such as ".ts";
// skip entries are one or more slash-separated directory names.
func NewScanner(extensions, skipDirs []string, logger *zap.Logger) *Scanner {
	s := &Scanner{
		Extensions: extensions,
		SkipDirs:   skipDirs,
		logger:     logging.OrNop(logger),
	}
	for _, dir := range skipDirs {
		s.skipSegs = append(s.skipSegs, splitSegments(dir))
	}
	return s
}

// Scan walks every root in order and returns one result per root.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]RootResult, error) {
	if len(roots) == 0 {
		return nil, errNoRoots
	}

	results := make([]RootResult, 0, len(roots))
	for _, root := range roots {
		res, err := s.scanRoot(ctx, root)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root string) (RootResult, error) {
	result := RootResult{Root: root}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("Root does not exist, skipping", zap.String("root", root))
			result.Missing = true
			return result, nil
		}
		return result, fmt.Errorf("stat root %s: %w", root, err)
	}

	if !info.IsDir() {
		if s.HasExtension(root) {
			result.Candidates = append(result.Candidates, Candidate{
				Root:    filepath.Dir(root),
				Path:    root,
				RelPath: filepath.Base(root),
				Size:    info.Size(),
				Mode:    info.Mode(),
			})
		}
		return result, nil
	}

	s.logger.Debug("Starting root scan", zap.String("root", root))

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// unreadable entries are logged and left out; the walk goes on
			if os.IsPermission(err) {
				s.logger.Warn("Permission denied", zap.String("path", path))
			} else {
				s.logger.Warn("Failed to read path", zap.String("path", path), zap.Error(err))
			}
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && s.ShouldSkip(rel) {
				s.logger.Debug("Skipping directory", zap.String("path", path))
				result.Skipped++
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.HasExtension(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.logger.Warn("Failed to stat file", zap.String("path", path), zap.Error(err))
			return nil
		}

		result.Candidates = append(result.Candidates, Candidate{
			Root:    root,
			Path:    path,
			RelPath: rel,
			Size:    fi.Size(),
			Mode:    fi.Mode(),
		})
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to scan root %s: %w", root, err)
	}

	sort.Slice(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].Path < result.Candidates[j].Path
	})

	s.logger.Debug("Root scan complete",
		zap.String("root", root),
		zap.Int("candidates_found", len(result.Candidates)),
		zap.Int("dirs_skipped", result.Skipped),
	)

	return result, nil
}

// Match applies the Scan filters to a single file under root and builds its
// candidate. ok is false when Scan would not have selected the file.
func (s *Scanner) Match(root, path string) (Candidate, bool) {
	if !s.HasExtension(path) {
		return Candidate{}, false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Candidate{}, false
	}
	if dir := filepath.Dir(rel); dir != "." && s.ShouldSkip(filepath.ToSlash(dir)) {
		return Candidate{}, false
	}

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Candidate{}, false
	}

	return Candidate{
		Root:    root,
		Path:    path,
		RelPath: filepath.ToSlash(rel),
		Size:    info.Size(),
		Mode:    info.Mode(),
	}, true
}

// HasExtension reports whether name ends with one of the configured
// extensions.
func (s *Scanner) HasExtension(name string) bool {
	for _, ext := range s.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ShouldSkip reports whether the slash-separated relative directory path
// contains a skip entry as a run of whole segments. "dist" matches
// "app/dist" but not "distance"; "prisma/migrations" matches
// "prisma/migrations/2024" but not "prisma/seed".
func (s *Scanner) ShouldSkip(rel string) bool {
	segs := splitSegments(rel)
	for _, skip := range s.skipSegs {
		if containsRun(segs, skip) {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

func containsRun(segs, run []string) bool {
	if len(run) == 0 || len(run) > len(segs) {
		return false
	}
	for i := 0; i+len(run) <= len(segs); i++ {
		match := true
		for j := range run {
			if segs[i+j] != run[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Total returns the number of candidates across all results.
func Total(results []RootResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Candidates)
	}
	return n
}
