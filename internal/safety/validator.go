// Package safety decides whether a file may be rewritten in place.
package safety

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrTraversal      = errors.New("path traversal detected")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
	ErrNotRegular     = errors.New("not a regular file")
)

// systemDirs are never rewritten, even when a root contains them.
// "/" only protects itself.
var systemDirs = []string{
	"/",
	"/etc",
	"/bin",
	"/sbin",
	"/lib",
	"/lib64",
	"/boot",
	"/proc",
	"/sys",
	"/dev",
	"/usr/bin",
	"/usr/sbin",
	"/usr/lib",
	"/usr/lib64",
	"/usr/libexec",
	"/usr/share",
	"/usr/include",
}

// Validator guards every in-place rewrite. A target must lie under one of
// the roots, both as written and after resolving symlinks, must not be in a
// protected directory and must be a regular file.
type Validator struct {
	roots     []string
	protected []string
}

// NewValidator creates a validator for the given roots. extraProtected adds
// directories to the built-in system list.
func NewValidator(roots []string, extraProtected []string) *Validator {
	v := &Validator{
		protected: append(append([]string(nil), systemDirs...), extraProtected...),
	}
	for _, r := range roots {
		v.addRoot(r)
	}
	return v
}

// Roots returns the absolute roots, including the resolved form of roots
// reached through a symlink.
func (v *Validator) Roots() []string {
	return append([]string(nil), v.roots...)
}

// ValidateWriteTarget returns nil when path may be rewritten. Errors wrap one
// of the package sentinels. A target that does not exist passes; reading it
// fails later with a clearer error.
func (v *Validator) ValidateWriteTarget(path string) error {
	if hasDotDot(path) {
		return reject(ErrTraversal, path)
	}
	abs, err := absClean(path)
	if err != nil {
		return reject(ErrInvalidPath, path)
	}
	if v.isProtected(abs) {
		return reject(ErrProtectedPath, abs)
	}
	if !v.inRoots(abs) {
		return reject(ErrOutsideAllowed, abs)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("resolve %s: %w", abs, err)
	}
	if !v.inRoots(resolved) {
		return reject(ErrSymlinkEscape, abs)
	}
	if v.isProtected(resolved) {
		return reject(ErrProtectedPath, resolved)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return reject(ErrNotRegular, abs)
	}
	return nil
}

func reject(kind error, path string) error {
	return fmt.Errorf("%w: %s", kind, path)
}

func (v *Validator) addRoot(r string) {
	abs, err := absClean(r)
	if err != nil {
		return
	}
	v.appendRoot(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		v.appendRoot(resolved)
	}
}

func (v *Validator) appendRoot(p string) {
	for _, r := range v.roots {
		if r == p {
			return
		}
	}
	v.roots = append(v.roots, p)
}

func (v *Validator) inRoots(abs string) bool {
	for _, r := range v.roots {
		if hasPathPrefix(abs, r) {
			return true
		}
	}
	return false
}

func (v *Validator) isProtected(abs string) bool {
	for _, p := range v.protected {
		if hasPathPrefix(abs, p) {
			return true
		}
	}
	return false
}

// absClean makes path absolute and clean. Blank input is invalid.
func absClean(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// hasDotDot reports a ".." segment in the path as given, before cleaning
// can hide it.
func hasDotDot(raw string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(raw), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// hasPathPrefix reports whether path is prefix or lies beneath it. The
// filesystem root only matches itself.
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	sep := string(os.PathSeparator)
	if prefix == sep || path == prefix {
		return path == prefix
	}
	return strings.HasPrefix(path, prefix+sep)
}
