package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
)

// DefaultLookbackRows bounds how far above an opening brace a function
// header is searched for.
const DefaultLookbackRows = 10

// Mode selects the document grammar.
type Mode uint8

const (
	// ModeR scans the whole document as R code.
	ModeR Mode = iota
	// ModeMarkdown scans R Markdown: headings in prose, R code in chunks.
	ModeMarkdown
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == ModeMarkdown {
		return "markdown"
	}
	return "r"
}

// ParseMode parses a mode name. The empty string selects ModeR.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "r":
		return ModeR, nil
	case "markdown", "rmd", "rmarkdown", "quarto":
		return ModeMarkdown, nil
	default:
		return ModeR, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ModeForPath picks a mode from a file extension.
func ModeForPath(path string) Mode {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rmd", ".qmd", ".md", ".rmarkdown":
		return ModeMarkdown
	default:
		return ModeR
	}
}

// Option configures a Scanner during creation.
type Option func(*Scanner)

// WithMode sets the document grammar.
func WithMode(mode Mode) Option {
	return func(s *Scanner) {
		s.mode = mode
	}
}

// WithLookbackRows sets how many rows above an opening brace are searched
// for its function header.
func WithLookbackRows(rows int) Option {
	return func(s *Scanner) {
		if rows >= 0 {
			s.lookbackRows = rows
		}
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(s *Scanner) {
		if log != nil {
			s.log = log
		}
	}
}
