// Package watch follows R and R Markdown files on disk.
//
// An FSNotifyWatcher reports file changes and a Tracker feeds each file,
// once a burst of changes to it has settled, into its document.Document,
// which rescans only from the first changed line.
package watch

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file was removed.
	OpRemove
	// OpRename indicates a file was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	var names []string
	for _, o := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}} {
		if op.Has(o.op) {
			names = append(names, o.name)
		}
	}
	if len(names) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(names, "|")
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Gone reports whether the file no longer exists under its name.
func (op Op) Gone() bool {
	return op.Has(OpRemove) || op.Has(OpRename)
}

// Event represents a file change.
type Event struct {
	// Path is the absolute path of the affected file.
	Path string

	// Op is the operation that occurred. Settled events combine ops.
	Op Op

	// Timestamp is when the (last) change occurred.
	Timestamp time.Time
}

// Watcher monitors file changes.
type Watcher interface {
	// Watch starts watching a file, or the matching files in a directory.
	Watch(path string) error

	// Unwatch stops watching a path.
	Unwatch(path string) error

	// Events returns the channel of file change events.
	// The channel is closed when the watcher is closed.
	Events() <-chan Event

	// Errors returns the channel of watcher errors.
	// The channel is closed when the watcher is closed.
	Errors() <-chan error

	// Close stops the watcher and releases resources.
	Close() error
}

// DefaultExtensions are the file types followed when watching a directory.
var DefaultExtensions = []string{".r", ".rmd", ".qmd", ".rmarkdown"}

// Config holds watcher configuration options.
type Config struct {
	// BufferSize is the size of the event and error channels.
	BufferSize int

	// Extensions selects files in watched directories, compared
	// case-insensitively.
	Extensions []string
}

// DefaultConfig returns the default watcher settings.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Extensions: DefaultExtensions,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithExtensions sets the file extensions followed in directories.
func WithExtensions(exts ...string) Option {
	return func(c *Config) {
		c.Extensions = exts
	}
}

func (c Config) matches(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range c.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
