// Package logging configures leveled, component-scoped logging for scopetree.
//
// Loggers are provided by commonlog; this package maps the editor's log
// levels onto commonlog verbosity and hands out named loggers per component.
package logging

import (
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LogLevelDebug is for detailed debugging information.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is for general informational messages.
	LogLevelInfo
	// LogLevelWarn is for warning messages.
	LogLevelWarn
	// LogLevelError is for error messages.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Verbosity returns the commonlog verbosity that enables this level.
func (l LogLevel) Verbosity() int {
	switch l {
	case LogLevelDebug:
		return 2
	case LogLevelWarn:
		return -1
	case LogLevelError:
		return -2
	default:
		return 1
	}
}

// ParseLogLevel parses a string into a LogLevel.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ValidLevel reports whether s names a log level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Config configures logging.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel
	// Path is the log file. Empty means stderr.
	Path string
	// Prefix is prepended to every component logger name.
	Prefix string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LogLevelInfo,
		Prefix: "scopetree",
	}
}

var prefix = "scopetree"

// Configure installs cfg as the process-wide logging setup.
// Should be called early in application startup.
func Configure(cfg Config) {
	if cfg.Prefix != "" {
		prefix = cfg.Prefix
	}
	var path *string
	if cfg.Path != "" {
		path = &cfg.Path
	}
	commonlog.Configure(cfg.Level.Verbosity(), path)
}

// Name returns the full logger name for component.
func Name(component string) string {
	if component == "" {
		return prefix
	}
	return prefix + "." + component
}

// GetLogger returns the logger for component.
func GetLogger(component string) commonlog.Logger {
	return commonlog.GetLogger(Name(component))
}
