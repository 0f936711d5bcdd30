package document

import (
	"github.com/tliron/commonlog"

	"github.com/dshills/scopetree/internal/scanner"
)

// Default configuration values.
const (
	// DefaultLookahead is how many rows past a queried row are scanned, so
	// that a function whose brace follows its name by a few lines is found.
	DefaultLookahead  = 30
	DefaultMaxChanges = 1000
)

// Option configures a Document during creation.
type Option func(*Document)

// WithPath associates the document with a file path.
func WithPath(path string) Option {
	return func(d *Document) {
		d.path = path
	}
}

// WithScanner sets the scanner that drives the scope tree.
func WithScanner(s *scanner.Scanner) Option {
	return func(d *Document) {
		if s != nil {
			d.scanner = s
		}
	}
}

// WithLookahead sets how many rows past a queried row are scanned.
func WithLookahead(rows int) Option {
	return func(d *Document) {
		if rows >= 0 {
			d.lookahead = rows
		}
	}
}

// WithMaxChanges sets the number of changes kept in the history.
func WithMaxChanges(max int) Option {
	return func(d *Document) {
		if max > 0 {
			d.maxChanges = max
		}
	}
}

// WithRootLabel sets the label of the scope tree root.
func WithRootLabel(label string) Option {
	return func(d *Document) {
		d.rootLabel = &label
	}
}

// WithLogger sets the document's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(d *Document) {
		if log != nil {
			d.log = log
		}
	}
}
