// Package logger holds the process-wide structured logger. Components
// take a zerolog.Logger so tests can inject their own; this package
// owns the default instance and its output file.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	global  = zerolog.New(io.Discard)
	logFile *os.File
)

// Init routes the global logger to the given file path. Passing an
// empty path logs to stderr in console format instead.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	if logPath == "" {
		global = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return nil
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	logFile = f
	global = zerolog.New(f).With().Timestamp().Logger()
	return nil
}

// SetLevel sets the global minimum level ("debug", "info", "warn",
// "error"). Unknown names leave the level unchanged.
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	global = global.Level(lvl)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	global = zerolog.New(io.Discard)
}

// Get returns the current global logger.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return global
}

// Info logs a formatted info message.
func Info(format string, v ...interface{}) {
	l := Get()
	l.Info().Msgf(format, v...)
}

// Debug logs a formatted debug message.
func Debug(format string, v ...interface{}) {
	l := Get()
	l.Debug().Msgf(format, v...)
}

// Error logs a formatted error message.
func Error(format string, v ...interface{}) {
	l := Get()
	l.Error().Msgf(format, v...)
}

// Warn logs a formatted warning message.
func Warn(format string, v ...interface{}) {
	l := Get()
	l.Warn().Msgf(format, v...)
}

// GetWriter returns the underlying writer for components that need raw
// output access.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		return logFile
	}
	return io.Discard
}
