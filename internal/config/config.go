// Package config loads scopetree settings.
//
// Settings come from built-in defaults, an optional TOML or YAML file and
// SCOPETREE_* environment variables, in increasing priority:
//
//	cfg, err := config.Load(nil, "scopetree.toml")
//	if err != nil {
//	    return err
//	}
//	logging.Configure(cfg.LoggingConfig())
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/scopetree/internal/config/loader"
	"github.com/dshills/scopetree/internal/logging"
	"github.com/dshills/scopetree/internal/scanner"
	"github.com/dshills/scopetree/internal/scope"
)

// Config holds all settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Scanner ScannerConfig `yaml:"scanner"`
	Index   IndexConfig   `yaml:"index"`
	Watch   WatchConfig   `yaml:"watch"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// File receives log output. Empty means stderr.
	File string `yaml:"file"`
}

// ScannerConfig configures how documents are scanned.
type ScannerConfig struct {
	// Mode forces a grammar ("r" or "markdown"). Empty picks by file extension.
	Mode string `yaml:"mode"`
	// LookbackRows bounds how far a function header may precede its brace.
	LookbackRows int `yaml:"lookbackRows"`
	// Lookahead is how many rows past a query position are scanned.
	Lookahead int `yaml:"lookahead"`
	// RootLabel labels the top-level scope. Empty leaves it unlabeled.
	RootLabel string `yaml:"rootLabel"`
}

// IndexConfig configures the symbol index.
type IndexConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// WatchConfig configures file watching.
type WatchConfig struct {
	// Debounce is how long a file must stay quiet before its changes are
	// applied.
	Debounce time.Duration `yaml:"debounce"`
	// MaxWait bounds how long a file that keeps changing waits. Zero means
	// no bound.
	MaxWait time.Duration `yaml:"maxWait"`
	// BufferSize is the capacity of the event channel.
	BufferSize int `yaml:"bufferSize"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Scanner: ScannerConfig{
			LookbackRows: scanner.DefaultLookbackRows,
			Lookahead:    30,
			RootLabel:    scope.DefaultRootLabel,
		},
		Index: IndexConfig{Path: "scopetree.db"},
		Watch: WatchConfig{
			Debounce:   100 * time.Millisecond,
			MaxWait:    time.Second,
			BufferSize: 100,
		},
	}
}

// Load reads path (if non-empty and present) and the environment over the
// defaults and validates the result. A nil fsys means the OS file system.
func Load(fsys loader.FileSystem, path string) (*Config, error) {
	merged := make(map[string]any)
	if path != "" {
		l, err := loader.ForPath(fsys, path)
		if err != nil {
			return nil, err
		}
		file, err := l.Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, file)
	}

	env, err := loader.NewEnvLoader(loader.DefaultEnvPrefix).Load()
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	merged = loader.DeepMerge(merged, env)

	cfg, err := FromMap(merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap decodes a settings map over the defaults.
func FromMap(m map[string]any) (*Config, error) {
	cfg := Default()
	if len(m) == 0 {
		return cfg, nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return cfg, nil
}

// Validate checks every setting and returns the first invalid one.
func (c *Config) Validate() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{Path: "logging.level", Message: "unknown log level", Value: c.Logging.Level}
	}
	if _, err := scanner.ParseMode(c.Scanner.Mode); err != nil {
		return &ValidationError{Path: "scanner.mode", Message: "unknown mode", Value: c.Scanner.Mode}
	}
	if c.Scanner.LookbackRows < 0 {
		return &ValidationError{Path: "scanner.lookbackRows", Message: "must not be negative", Value: c.Scanner.LookbackRows}
	}
	if c.Scanner.Lookahead < 0 {
		return &ValidationError{Path: "scanner.lookahead", Message: "must not be negative", Value: c.Scanner.Lookahead}
	}
	if c.Index.Path == "" {
		return &ValidationError{Path: "index.path", Message: "required", Value: c.Index.Path}
	}
	if c.Watch.Debounce < 0 {
		return &ValidationError{Path: "watch.debounce", Message: "must not be negative", Value: c.Watch.Debounce}
	}
	if c.Watch.MaxWait < 0 {
		return &ValidationError{Path: "watch.maxWait", Message: "must not be negative", Value: c.Watch.MaxWait}
	}
	if c.Watch.BufferSize < 1 {
		return &ValidationError{Path: "watch.bufferSize", Message: "must be positive", Value: c.Watch.BufferSize}
	}
	return nil
}

// LoggingConfig returns the logging setup described by c.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLogLevel(c.Logging.Level)
	lc.Path = c.Logging.File
	return lc
}

// ScannerOptions returns the scanner options for a document at path. A
// configured mode overrides the one implied by the path.
func (c *Config) ScannerOptions(path string) []scanner.Option {
	mode := scanner.ModeForPath(path)
	if c.Scanner.Mode != "" {
		// Validate has accepted the mode.
		mode, _ = scanner.ParseMode(c.Scanner.Mode)
	}
	return []scanner.Option{
		scanner.WithMode(mode),
		scanner.WithLookbackRows(c.Scanner.LookbackRows),
	}
}
