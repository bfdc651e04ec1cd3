// Package darwinlog provides the filter daemon's structured logger.
//
// It keeps the teacher's package-level-default-logger shape
// (NewLogger/SetLevel/SetOutput/Debug/Info/Warn/Error) but backs it
// with zerolog instead of the standard library's log.Logger, so the
// module's declared zerolog dependency is actually exercised.
package darwinlog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level mirrors the teacher's LogLevel enum.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a config string ("debug","info","warn","error")
// into a Level, defaulting to InfoLevel on an unrecognized value.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger wraps a zerolog.Logger with a mutex-guarded level/output so
// it can be reconfigured at runtime (e.g. on SIGHUP log rotation).
type Logger struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
	prefix string
	zl     zerolog.Logger
}

// New builds a Logger writing to out, tagging every record with
// prefix (e.g. the filter name), at the given level.
func New(out io.Writer, prefix string, level Level) *Logger {
	l := &Logger{output: out, prefix: prefix, level: level}
	l.rebuild()
	return l
}

func (l *Logger) rebuild() {
	ctx := zerolog.New(l.output).With().Timestamp()
	if l.prefix != "" {
		ctx = ctx.Str("component", l.prefix)
	}
	l.zl = ctx.Logger().Level(l.level.zerolog())
}

// SetOutput redirects future log records, used for log rotation.
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = out
	l.rebuild()
}

// SetLevel adjusts the minimum level emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuild()
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.emit(DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.emit(InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.emit(WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.emit(ErrorLevel, msg, fields) }

func (l *Logger) emit(level Level, msg string, fields map[string]any) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	var ev *zerolog.Event
	switch level {
	case DebugLevel:
		ev = zl.Debug()
	case WarnLevel:
		ev = zl.Warn()
	case ErrorLevel:
		ev = zl.Error()
	default:
		ev = zl.Info()
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns the package-level logger, created lazily writing to
// stderr at InfoLevel, mirroring the teacher's package-level singleton.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(os.Stderr, "", InfoLevel)
	})
	return defaultLog
}
