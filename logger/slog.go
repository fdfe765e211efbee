package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/phsym/console-slog"
)

// Format selects how records are rendered.
type Format string

const (
	// FormatJSON writes one JSON object per line, with the time under "ts".
	FormatJSON Format = "json"
	// FormatText writes logfmt-style key=value lines.
	FormatText Format = "text"
	// FormatConsole writes colored, human-oriented lines.
	FormatConsole Format = "console"
)

// ParseFormat converts a format name to a Format. An empty name selects the
// environment default; see DefaultFormat.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case "":
		return DefaultFormat(), nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	case FormatConsole:
		return FormatConsole, nil
	default:
		return FormatJSON, fmt.Errorf("logger: unknown format %q", name)
	}
}

// DefaultFormat returns FormatConsole when the ENV environment variable is
// "development", FormatJSON otherwise.
func DefaultFormat() Format {
	if os.Getenv("ENV") == "development" {
		return FormatConsole
	}

	return FormatJSON
}

// SlogLogger is a Logger backed by log/slog. Children created by With share
// the parent's level.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var _ Logger = (*SlogLogger)(nil)

// levelFatal sits above slog.LevelError so FatalLevel silences Error.
const levelFatal = slog.LevelError + 4

// NewSlog creates a logger writing to os.Stderr, leaving stdout to the
// program's own output.
func NewSlog(level Level, addSource bool) Logger {
	return NewSlogTo(os.Stderr, level, addSource)
}

// NewSlogTo creates a logger writing to w in the DefaultFormat.
func NewSlogTo(w io.Writer, level Level, addSource bool) Logger {
	return NewSlogFormat(w, DefaultFormat(), level, addSource)
}

// NewSlogFormat creates a logger writing to w in the given format.
// An unknown format falls back to JSON.
func NewSlogFormat(w io.Writer, format Format, level Level, addSource bool) Logger {
	lv := &slog.LevelVar{}
	lv.Set(toSlogLevel(level))

	return &SlogLogger{
		logger: slog.New(newHandler(w, format, lv, addSource)),
		level:  lv,
	}
}

func newHandler(w io.Writer, format Format, lv *slog.LevelVar, addSource bool) slog.Handler {
	if format == FormatConsole {
		return console.NewHandler(w, &console.HandlerOptions{
			AddSource: addSource,
			Level:     lv,
		})
	}

	opts := &slog.HandlerOptions{
		AddSource: addSource,
		Level:     lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}

			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				if lv, ok := a.Value.Any().(slog.Level); ok && lv >= levelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}

			return a
		},
	}

	if format == FormatText {
		return slog.NewTextHandler(w, opts)
	}

	return slog.NewJSONHandler(w, opts)
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.log(levelFatal, msg, keysAndValues...)
	os.Exit(1)
}

func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(keyValues...),
		level:  l.level,
	}
}

func (l *SlogLogger) Level() Level {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DebugLevel
	case lv <= slog.LevelInfo:
		return InfoLevel
	case lv <= slog.LevelWarn:
		return WarnLevel
	case lv <= slog.LevelError:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must be called directly by an exported logging method: the source
// position is taken at a fixed call depth.
func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	// skip [runtime.Callers, log, exported method]
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return levelFatal
	}
}
