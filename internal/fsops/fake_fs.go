package fsops

import (
	"os"
	"sync"
)

// FakeFS implements FileSystem in memory for testing.
// Records every write call; reads come from Files or ReadErrs.
type FakeFS struct {
	mu        sync.Mutex
	Files     map[string][]byte
	ReadErrs  map[string]error
	WriteErrs map[string]error
	Calls     []string
}

// NewFakeFS returns a FakeFS seeded with the given file contents.
func NewFakeFS(files map[string]string) *FakeFS {
	f := &FakeFS{
		Files:     make(map[string][]byte, len(files)),
		ReadErrs:  make(map[string]error),
		WriteErrs: make(map[string]error),
	}
	for path, content := range files {
		f.Files[path] = []byte(content)
	}
	return f
}

func (f *FakeFS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErrs[path]; err != nil {
		return nil, err
	}
	data, ok := f.Files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (f *FakeFS) WriteFile(path string, data []byte, _ os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "write:"+path)
	if err := f.WriteErrs[path]; err != nil {
		return err
	}
	f.Files[path] = append([]byte(nil), data...)
	return nil
}

// Writes returns the recorded write calls.
func (f *FakeFS) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}
