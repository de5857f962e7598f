package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFSKeepsFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log(1);\n"), 0o600))

	var fs FileSystem = OSFS{}
	require.NoError(t, fs.WriteFile(path, []byte("\n"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\n", string(data))
}

func TestFakeFS(t *testing.T) {
	fs := NewFakeFS(map[string]string{"/src/a.ts": "a"})

	data, err := fs.ReadFile("/src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	_, err = fs.ReadFile("/src/missing.ts")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, fs.WriteFile("/src/a.ts", []byte("b"), 0o644))
	assert.Equal(t, []string{"write:/src/a.ts"}, fs.Writes())
	assert.Equal(t, "b", string(fs.Files["/src/a.ts"]))
}
