package fsops

import "os"

// OSFS implements FileSystem using real os package calls
type OSFS struct{}

func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile truncates and rewrites path in place. The existing file mode is
// kept because os.WriteFile only applies perm when it creates the file.
func (OSFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}
