package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type MetricsCfg struct {
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"` // Prometheus textfile collector output, empty disables
}

type LoggingCfg struct {
	Level        string `yaml:"level" json:"level"`                 // debug, info, warn, error
	File         string `yaml:"file" json:"file"`                   // Optional log file in addition to stderr
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type ResourceLimits struct {
	MaxCPUPercent float64 `yaml:"max_cpu_percent" json:"max_cpu_percent"` // 0 disables throttling
}

type WatchCfg struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"` // Quiet period after the last change before a file is swept
}

type Config struct {
	Roots          []string       `yaml:"roots" json:"roots"`
	Extensions     []string       `yaml:"extensions" json:"extensions"`
	SkipDirs       []string       `yaml:"skip_dirs" json:"skip_dirs"`
	TargetCall     string         `yaml:"target_call" json:"target_call"`
	DryRun         bool           `yaml:"dry_run" json:"dry_run"`
	DatabasePath   string         `yaml:"database_path" json:"database_path"` // SQLite run history, empty disables
	Metrics        MetricsCfg     `yaml:"metrics" json:"metrics"`
	Logging        LoggingCfg     `yaml:"logging" json:"logging"`
	ResourceLimits ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
	Watch          WatchCfg       `yaml:"watch" json:"watch"`
}

var (
	DefaultRoots      = []string{"frontend/src", "backend"}
	DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}
	DefaultSkipDirs   = []string{
		"node_modules",
		"dist",
		"build",
		".next",
		"coverage",
		"uploads",
		"assets",
		"public",
		"prisma/migrations",
		"certs",
	}
)

const (
	DefaultTargetCall   = "console.log"
	DefaultDatabasePath = ".logsweep/history.db"
	DefaultDebounce     = 200 * time.Millisecond
)

var (
	errNoRoots        = errors.New("configuration must specify at least one root")
	errEmptyRoot      = errors.New("root must not be empty")
	errNoExtensions   = errors.New("configuration must specify at least one extension")
	errBadExtension   = errors.New("invalid extension")
	errEmptySkipDir   = errors.New("skip_dirs entries must not be empty")
	errBadTargetCall  = errors.New("target_call must be a dotted identifier such as console.log")
	errBadLogLevel    = errors.New("invalid logging level")
	errBadCPUPercent  = errors.New("max_cpu_percent must be between 0 and 100")
	errNegativeRotate = errors.New("rotation_days cannot be negative")
	errBadDebounce    = errors.New("watch debounce cannot be negative")
)

var targetCallRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Roots:        append([]string(nil), DefaultRoots...),
		Extensions:   append([]string(nil), DefaultExtensions...),
		SkipDirs:     append([]string(nil), DefaultSkipDirs...),
		TargetCall:   DefaultTargetCall,
		DatabasePath: DefaultDatabasePath,
		Logging: LoggingCfg{
			Level:        "info",
			RotationDays: 30,
		},
		Watch: WatchCfg{Debounce: DefaultDebounce},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// empty file keeps the defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate normalises the configuration in place and reports the first
// problem found. Call it again after applying command-line overrides.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return errNoRoots
	}
	for i, r := range c.Roots {
		if strings.TrimSpace(r) == "" {
			return errEmptyRoot
		}
		c.Roots[i] = filepath.Clean(r)
	}

	if len(c.Extensions) == 0 {
		return errNoExtensions
	}
	for i, ext := range c.Extensions {
		norm, err := normalizeExtension(ext)
		if err != nil {
			return err
		}
		c.Extensions[i] = norm
	}

	for i, dir := range c.SkipDirs {
		norm := strings.Trim(filepath.ToSlash(strings.TrimSpace(dir)), "/")
		if norm == "" {
			return errEmptySkipDir
		}
		c.SkipDirs[i] = norm
	}

	c.TargetCall = strings.TrimSpace(c.TargetCall)
	if c.TargetCall == "" {
		c.TargetCall = DefaultTargetCall
	}
	if !targetCallRe.MatchString(c.TargetCall) {
		return fmt.Errorf("%w: %q", errBadTargetCall, c.TargetCall)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %q", errBadLogLevel, c.Logging.Level)
	}
	if c.Logging.RotationDays < 0 {
		return errNegativeRotate
	}
	if c.Logging.RotationDays == 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	if c.ResourceLimits.MaxCPUPercent < 0 || c.ResourceLimits.MaxCPUPercent > 100 {
		return errBadCPUPercent
	}

	if c.Watch.Debounce < 0 {
		return errBadDebounce
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = DefaultDebounce
	}

	return nil
}

// normalizeExtension adds the leading dot, so "ts" and ".ts" are the same.
func normalizeExtension(ext string) (string, error) {
	ext = strings.TrimSpace(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	if len(ext) < 2 || strings.ContainsAny(ext, `/\ `) {
		return "", fmt.Errorf("%w: %q", errBadExtension, ext)
	}
	return ext, nil
}

// HistoryEnabled reports whether runs are recorded to the SQLite database.
func (c *Config) HistoryEnabled() bool {
	return c.DatabasePath != ""
}

// Absolute returns a copy of c with every root made absolute, so candidate
// paths never carry a leading "..". c is not modified.
func (c *Config) Absolute() (*Config, error) {
	out := *c
	out.Roots = make([]string, len(c.Roots))
	for i, r := range c.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", r, err)
		}
		out.Roots[i] = abs
	}
	return &out, nil
}
