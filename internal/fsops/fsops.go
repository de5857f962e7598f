package fsops

import "os"

// FileSystem abstracts the file reads and writes done while rewriting.
// Enables tests to prove dry runs and unchanged files never write.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
}
