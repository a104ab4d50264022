// Package charmlog adapts the charmbracelet log library to the domain Logger interface.
package charmlog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/ochairo/cauldron/internal/domain/interfaces"
)

// Options controls how log output is rendered.
type Options struct {
	// Level is the minimum level to emit: debug, info, warn or error.
	// Unknown values fall back to info.
	Level string

	// JSON switches output from human-readable text to JSON lines.
	JSON bool

	// ReportTime prefixes each entry with a timestamp.
	ReportTime bool
}

// Logger implements interfaces.Logger on top of charmbracelet/log.
type Logger struct {
	charm *log.Logger
}

// New creates a Logger writing to w. A nil writer defaults to stderr.
func New(w io.Writer, opts Options) *Logger {
	if w == nil {
		w = os.Stderr
	}
	charm := log.NewWithOptions(w, log.Options{
		ReportTimestamp: opts.ReportTime,
		TimeFormat:      "15:04:05",
		Level:           parseLevel(opts.Level),
	})
	if opts.JSON {
		charm.SetFormatter(log.JSONFormatter)
	} else {
		charm.SetFormatter(log.TextFormatter)
	}
	return &Logger{charm: charm}
}

// Debug logs debug-level messages
func (l *Logger) Debug(msg string, fields ...interfaces.Field) {
	l.charm.Debug(msg, keyvals(fields)...)
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields ...interfaces.Field) {
	l.charm.Info(msg, keyvals(fields)...)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields ...interfaces.Field) {
	l.charm.Warn(msg, keyvals(fields)...)
}

// Error logs error messages
func (l *Logger) Error(msg string, fields ...interfaces.Field) {
	l.charm.Error(msg, keyvals(fields)...)
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func keyvals(fields []interfaces.Field) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}
