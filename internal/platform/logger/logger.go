// Package logger provides structured logging for the arena server.
// Every phase transition of the controller bridge should be traceable through this.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// Options configures a Logger.
type Options struct {
	// Verbose logs phase transitions and configuration at startup.
	// When false only errors are written.
	Verbose bool
	Output  io.Writer
	Prefix  string
}

// Logger provides structured logging with context.
type Logger struct {
	base    *log.Logger
	verbose bool
}

// NewLogger creates a new logger instance.
func NewLogger(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "arena"
	}

	formatter := log.LogfmtFormatter
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		formatter = log.TextFormatter
	}

	level := log.ErrorLevel
	if opts.Verbose {
		level = log.DebugLevel
	}

	return &Logger{
		base: log.NewWithOptions(out, log.Options{
			ReportTimestamp: true,
			Prefix:          prefix,
			Level:           level,
			Formatter:       formatter,
		}),
		verbose: opts.Verbose,
	}
}

// Discard returns a logger that writes nothing. Useful in tests.
func Discard() *Logger {
	return NewLogger(Options{Output: io.Discard})
}

// Verbose reports whether phase transitions are being logged.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{base: l.base.With(keyvals...), verbose: l.verbose}
}

// Debug logs high-frequency diagnostics.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.base.Debug(msg, keyvals...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string, keyvals ...any) {
	l.base.Info(msg, keyvals...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, keyvals ...any) {
	l.base.Warn(msg, keyvals...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, keyvals ...any) {
	l.base.Error(msg, keyvals...)
}

// Event logs a lifecycle event with its actor.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.base.Info(details, "event", eventType, "actor", actorID)
}
