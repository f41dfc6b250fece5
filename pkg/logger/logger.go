// Package logger wraps zerolog for structured application logging.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog logger
type Logger struct {
	logger zerolog.Logger
}

// New creates a logger writing JSON, or human readable lines when format is
// "text" or "console". Output is stdout, stderr or a file path; a file that
// cannot be opened falls back to stderr.
func New(level, format, output string) *Logger {
	writer, openErr := openOutput(output)

	if f := strings.ToLower(format); f == "text" || f == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	l := &Logger{
		logger: zerolog.New(writer).Level(parseLevel(level)).With().Timestamp().Logger(),
	}
	if openErr != nil {
		l.Warn().Err(openErr).Str("output", output).Msg("Failed to open log file, logging to stderr")
	}
	return l
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return os.Stderr, err
	}
	return file, nil
}

// parseLevel converts string level to zerolog.Level
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// FromWriter creates a logger on an arbitrary writer.
func FromWriter(w io.Writer, level string) *Logger {
	return &Logger{logger: zerolog.New(w).Level(parseLevel(level))}
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// DebugEnabled reports whether debug events are written.
func (l *Logger) DebugEnabled() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", name).Logger()}
}
