// Package logging provides the structured logger shared by every component of
// the voice metrics engine. Components receive a Logger explicitly and derive
// scoped children with WithFields; the package-level helpers exist for the CLI
// entry points only.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields carries structured key/value context for a log entry
type Fields map[string]any

// Level is a logging severity
type Level int8

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the lower-case level name
func (l Level) String() string {
	return l.zapLevel().String()
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a level name (debug, info, warn, error) to a Level
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger is the logging collaborator passed into engine components
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)
	WithFields(fields Fields) Logger
}

// Options configures a new Logger
type Options struct {
	Level  Level
	Format string // json or console
	Output io.Writer
}

type zapLogger struct {
	z *zap.Logger
}

// NewLogger builds a zap-backed Logger
func NewLogger(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), zap.NewAtomicLevelAt(opts.Level.zapLevel()))
	return &zapLogger{z: zap.New(core)}
}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func (l *zapLogger) Debug(msg string, fields ...Fields) {
	l.z.Debug(msg, toZap(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Fields) {
	l.z.Info(msg, toZap(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Fields) {
	l.z.Warn(msg, toZap(fields)...)
}

func (l *zapLogger) Error(err error, msg string, fields ...Fields) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.z.Error(msg, zf...)
}

func (l *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{z: l.z.With(toZap([]Fields{fields})...)}
}

// toZap flattens the field maps in key order so entries are stable between runs
func toZap(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, merged[k]))
	}
	return out
}

var (
	rootMu    sync.RWMutex
	rootLevel = InfoLevel
	root      = NewLogger(Options{Level: InfoLevel})
)

// SetLevel rebuilds the process default logger at the given level
func SetLevel(level Level) {
	rootMu.Lock()
	defer rootMu.Unlock()
	rootLevel = level
	root = NewLogger(Options{Level: level})
}

// SetDefault replaces the process default logger
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// GetLevel returns the level of the process default logger
func GetLevel() Level {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return rootLevel
}

// NewDefaultLogger returns the process default logger
func NewDefaultLogger() Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// WithFields derives a child of the process default logger
func WithFields(fields Fields) Logger {
	return NewDefaultLogger().WithFields(fields)
}

// Error logs through the process default logger
func Error(err error, msg string, fields ...Fields) {
	NewDefaultLogger().Error(err, msg, fields...)
}
