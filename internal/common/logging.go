// Package common provides shared utilities for ETF Compass
package common

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
)

// Logger wraps phuslu/log.Logger so every package shares one logging surface.
type Logger struct {
	log.Logger
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLogger creates a console logger writing to stderr at the given level
func NewLogger(level string) *Logger {
	return &Logger{Logger: log.Logger{
		Level:      parseLevel(level),
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		Writer: &log.ConsoleWriter{
			ColorOutput:    true,
			QuoteString:    true,
			EndWithMessage: true,
			Writer:         os.Stderr,
		},
	}}
}

// NewLoggerWithOutput creates a JSON logger writing to a specific output
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	return &Logger{Logger: log.Logger{
		Level:  parseLevel(level),
		Writer: &log.IOWriter{Writer: w},
	}}
}

// NewLoggerFromConfig builds a logger from the [logging] section.
// Format "console" renders human readable lines; anything else emits JSON.
// Outputs may combine "console" (stderr), "stdout" and "file".
func NewLoggerFromConfig(cfg LoggingConfig) *Logger {
	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"console"}
	}

	var writers log.MultiEntryWriter
	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "console", "stderr":
			writers = append(writers, streamWriter(cfg.Format, os.Stderr))
		case "stdout":
			writers = append(writers, streamWriter(cfg.Format, os.Stdout))
		case "file":
			if cfg.FilePath == "" {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
				continue
			}
			writers = append(writers, &log.FileWriter{
				Filename:   cfg.FilePath,
				MaxSize:    int64(cfg.MaxSizeMB) * 1024 * 1024,
				MaxBackups: cfg.MaxBackups,
			})
		}
	}

	if len(writers) == 0 {
		return NewLogger(cfg.Level)
	}

	return &Logger{Logger: log.Logger{
		Level:  parseLevel(cfg.Level),
		Writer: &writers,
	}}
}

func streamWriter(format string, w io.Writer) log.Writer {
	if strings.EqualFold(format, "console") || strings.EqualFold(format, "text") {
		return &log.ConsoleWriter{ColorOutput: true, QuoteString: true, EndWithMessage: true, Writer: w}
	}
	return &log.IOWriter{Writer: w}
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger() *Logger {
	return NewLogger("info")
}

// NewSilentLogger creates a logger that discards all output
func NewSilentLogger() *Logger {
	return &Logger{Logger: log.Logger{
		Level:  log.ErrorLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}}
}
