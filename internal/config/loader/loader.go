// Package loader reads configuration sources into generic maps.
//
// FileLoader decodes TOML or YAML files, following "@include" directives;
// EnvLoader overlays prefixed environment variables. Maps from several
// sources are combined with DeepMerge, later sources winning.
package loader

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MaxIncludeDepth bounds nested "@include" directives.
const MaxIncludeDepth = 8

// includeKey names the directive listing files merged under a config file.
const includeKey = "@include"

// Loader is the interface for configuration loaders.
type Loader interface {
	// Load reads configuration from the source and returns a map.
	// Returns nil, nil if the source doesn't exist (not an error).
	Load() (map[string]any, error)
}

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	fs.FS
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// Open implements fs.FS.
func (OSFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// FileLoader loads a configuration file of one format.
type FileLoader struct {
	fs     FileSystem
	path   string
	format Format
}

// NewFileLoader creates a loader for path in the given format. A nil fsys
// means the OS file system.
func NewFileLoader(fsys FileSystem, path string, format Format) *FileLoader {
	if fsys == nil {
		fsys = DefaultFS()
	}
	return &FileLoader{fs: fsys, path: path, format: format}
}

// ForPath creates a loader whose format follows path's extension.
func ForPath(fsys FileSystem, path string) (*FileLoader, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	return NewFileLoader(fsys, path, format), nil
}

// Format returns the loader's file format.
func (l *FileLoader) Format() Format {
	return l.format
}

// Load reads the configured file and its includes.
func (l *FileLoader) Load() (map[string]any, error) {
	return l.LoadWithIncludes(l.path, MaxIncludeDepth)
}

// LoadFrom reads a single file without processing includes.
func (l *FileLoader) LoadFrom(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return l.parse(path, data)
}

// LoadFromReader reads configuration from an io.Reader.
func (l *FileLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return l.parse("<reader>", data)
}

func (l *FileLoader) parse(source string, data []byte) (map[string]any, error) {
	switch l.format {
	case FormatTOML:
		return parseTOML(source, data)
	case FormatYAML:
		return parseYAML(source, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, l.format)
	}
}

// LoadWithIncludes loads path and merges the files named by its "@include"
// directive beneath it. Included files may use either format.
func (l *FileLoader) LoadWithIncludes(path string, maxDepth int) (map[string]any, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncludeDepthExceeded, path)
	}

	config, err := l.LoadFrom(path)
	if err != nil || config == nil {
		return nil, err
	}

	includes, ok := config[includeKey]
	if !ok {
		return config, nil
	}
	delete(config, includeKey)

	var paths []string
	switch v := includes.(type) {
	case string:
		paths = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s in %s must be a string or an array of strings", includeKey, path)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("%s in %s must be a string or an array of strings, got %T", includeKey, path, includes)
	}

	baseDir := filepath.Dir(path)
	for _, inc := range paths {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(baseDir, inc)
		}
		sub := l
		if format, err := FormatForPath(inc); err == nil && format != l.format {
			sub = NewFileLoader(l.fs, inc, format)
		}
		included, err := sub.LoadWithIncludes(inc, maxDepth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", inc, err)
		}
		// The including file wins over what it includes.
		config = DeepMerge(included, config)
	}
	return config, nil
}
