package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logsweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultRoots, cfg.Roots)
	assert.Equal(t, DefaultExtensions, cfg.Extensions)
	assert.Equal(t, DefaultSkipDirs, cfg.SkipDirs)
	assert.Equal(t, "console.log", cfg.TargetCall)
	assert.True(t, cfg.HistoryEnabled())
}

func TestDefaultReturnsCopies(t *testing.T) {
	cfg := Default()
	cfg.Roots[0] = "mutated"
	cfg.Extensions[0] = ".mutated"

	assert.Equal(t, "frontend/src", DefaultRoots[0])
	assert.Equal(t, ".ts", DefaultExtensions[0])
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
roots: [web/src]
extensions: [js, .vue]
target_call: console.debug
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"web/src"}, cfg.Roots)
	assert.Equal(t, []string{".js", ".vue"}, cfg.Extensions)
	assert.Equal(t, "console.debug", cfg.TargetCall)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, DefaultSkipDirs, cfg.SkipDirs)
	assert.Equal(t, 30, cfg.Logging.RotationDays)
	assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Roots, cfg.Roots)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"no roots", "roots: []", errNoRoots},
		{"blank root", `roots: ["  "]`, errEmptyRoot},
		{"no extensions", "extensions: []", errNoExtensions},
		{"bad extension", `extensions: ["."]`, errBadExtension},
		{"empty skip entry", `skip_dirs: ["/"]`, errEmptySkipDir},
		{"bad target", "target_call: console.log(", errBadTargetCall},
		{"bad level", "logging: {level: loud}", errBadLogLevel},
		{"negative rotation", "logging: {rotation_days: -1}", errNegativeRotate},
		{"cpu over 100", "resource_limits: {max_cpu_percent: 150}", errBadCPUPercent},
		{"negative debounce", "watch: {debounce: -1s}", errBadDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadWatchDebounce(t *testing.T) {
	cfg, err := Load(writeConfig(t, "watch: {debounce: 750ms}"))
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Watch.Debounce)

	cfg, err = Load(writeConfig(t, "watch: {debounce: 0s}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "rootz: [src]"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decode yaml"), err.Error())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateNormalises(t *testing.T) {
	cfg := Default()
	cfg.Roots = []string{"./src/"}
	cfg.SkipDirs = []string{"/prisma/migrations/", " dist "}
	cfg.TargetCall = "  "

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"src"}, cfg.Roots)
	assert.Equal(t, []string{"prisma/migrations", "dist"}, cfg.SkipDirs)
	assert.Equal(t, DefaultTargetCall, cfg.TargetCall)
}

func TestAbsoluteRoots(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	cfg := Default()
	cfg.Roots = []string{"../proj", "src", "/srv/app"}

	abs, err := cfg.Absolute()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(filepath.Dir(wd), "proj"),
		filepath.Join(wd, "src"),
		"/srv/app",
	}, abs.Roots)
	assert.Equal(t, []string{"../proj", "src", "/srv/app"}, cfg.Roots)
	assert.Equal(t, cfg.Extensions, abs.Extensions)
}
