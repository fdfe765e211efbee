// Package logger is the logging abstraction used by go-xmodem.
//
// The engine logs through the Logger interface with structured key/value
// pairs, so any logging framework can be plugged in with xmodem.WithLogger.
// SlogLogger is the bundled implementation on log/slog, and MockLogger lets
// tests assert on log calls.
//
// Levels, lowest first: DebugLevel (per-retry detail), InfoLevel (handshake
// and completion), WarnLevel (peer cancellation), ErrorLevel (failed
// transfers) and FatalLevel (logs, then exits).
package logger

import (
	"fmt"
	"strings"
)

// Level is a logging severity.
type Level = int8

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Logger is a leveled, structured logger.
//
// keysAndValues alternate between string keys and arbitrary values, and are
// added to the fields accumulated with With.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs at error severity and then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)

	// With returns a child logger carrying the given fields. The child and
	// its parent do not see each other's fields.
	With(keyValues ...any) Logger

	// Level returns the minimum enabled level.
	Level() Level
	// SetLevel changes the minimum enabled level.
	SetLevel(level Level)
}

// ParseLevel converts a level name (debug, info, warn, error, fatal) to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("logger: unknown level %q", name)
	}
}
