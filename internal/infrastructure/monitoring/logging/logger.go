// Package logging provides the structured logging interface used across
// LexAlert and its zap-backed implementation. Components depend on Logger;
// go.uber.org/zap is not imported outside this package.
//
// Initialisation order in cmd/*/main.go:
//
//  1. Parse configuration.
//  2. Call NewLogger(cfg.Log) and store the result with SetDefault.
//  3. Initialise all other components, injecting the Logger instance.
package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted by LogConfig.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ─────────────────────────────────────────────────────────────────────────────
// Field
// ─────────────────────────────────────────────────────────────────────────────

// Field is a typed key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// String constructs a Field with a string value.
func String(key, val string) Field { return Field{Key: key, Value: val} }

// Int constructs a Field with an int value.
func Int(key string, val int) Field { return Field{Key: key, Value: val} }

// Int64 constructs a Field with an int64 value.
func Int64(key string, val int64) Field { return Field{Key: key, Value: val} }

// Float64 constructs a Field with a float64 value.
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }

// Bool constructs a Field with a bool value.
func Bool(key string, val bool) Field { return Field{Key: key, Value: val} }

// Err captures an error under the key "error". A nil error is logged as "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any constructs a Field with an arbitrary value.
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }

// Duration constructs a Field with a time.Duration value.
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }

// Time constructs a Field with a time.Time value.
func Time(key string, val time.Time) Field { return Field{Key: key, Value: val} }

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

// Logger is the structured logging contract. All components receive a Logger
// via constructor injection.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Fatal logs and then calls os.Exit(1). Startup failures only.
	Fatal(msg string, fields ...Field)

	// With returns a child Logger that adds fields to every entry.
	With(fields ...Field) Logger

	// Named appends name to the logger name ("worker" -> "worker.dispatch").
	Named(name string) Logger
}

// LogConfig carries the parameters required to construct a Logger.
type LogConfig struct {
	// Level: debug, info, warn or error. Defaults to info.
	Level string `mapstructure:"level"`

	// Format: "json" or "console". Defaults to json.
	Format string `mapstructure:"format"`

	// OutputPaths defaults to ["stdout"] when nil.
	OutputPaths []string `mapstructure:"output_paths"`

	// ErrorOutputPaths defaults to ["stderr"] when nil.
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// zapLogger
// ─────────────────────────────────────────────────────────────────────────────

type zapLogger struct {
	z     *zap.Logger
	level *zap.AtomicLevel
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case time.Time:
			out = append(out, zap.Time(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZapFields(fields)...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZapFields(fields)...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZapFields(fields)...), level: l.level}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name), level: l.level}
}

// SetLevel changes the minimum level of l and every logger derived from it.
// It reports false when l was not built by NewLogger.
func SetLevel(l Logger, level string) bool {
	zl, ok := l.(*zapLogger)
	if !ok || zl.level == nil {
		return false
	}
	zl.level.SetLevel(parseLevel(level))
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// parseLevel converts a string level to a zapcore.Level. Unknown values
// default to InfoLevel.
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger constructs a zap-backed Logger from cfg.
func NewLogger(cfg LogConfig) (Logger, error) {
	if cfg.OutputPaths == nil {
		cfg.OutputPaths = []string{"stdout"}
	}
	if len(cfg.OutputPaths) == 0 {
		return nil, fmt.Errorf("logging: at least one output path is required")
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	encoding := "json"
	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encoding = "console"
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg := zap.Config{
		Level:            level,
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logging: failed to build zap logger: %w", err)
	}
	return &zapLogger{z: z, level: &level}, nil
}

// NewDefaultLogger returns an info-level JSON logger on stdout. It falls back
// to a nop logger if zap cannot be built.
func NewDefaultLogger() Logger {
	l, err := NewLogger(LogConfig{Level: LevelInfo, Format: "json"})
	if err != nil {
		return NewNopLogger()
	}
	return l
}

// NewLoggerFromCore constructs a Logger from an existing zapcore.Core.
// Tests use it with zaptest/observer.
func NewLoggerFromCore(core zapcore.Core) Logger {
	return &zapLogger{z: zap.New(core, zap.AddCallerSkip(1))}
}

// ─────────────────────────────────────────────────────────────────────────────
// nopLogger
// ─────────────────────────────────────────────────────────────────────────────

type nopLogger struct{}

func (nopLogger) Debug(_ string, _ ...Field) {}
func (nopLogger) Info(_ string, _ ...Field)  {}
func (nopLogger) Warn(_ string, _ ...Field)  {}
func (nopLogger) Error(_ string, _ ...Field) {}
func (nopLogger) Fatal(_ string, _ ...Field) {}
func (n nopLogger) With(_ ...Field) Logger   { return n }
func (n nopLogger) Named(_ string) Logger    { return n }

// NewNopLogger returns a Logger that discards all entries.
func NewNopLogger() Logger { return nopLogger{} }

// ─────────────────────────────────────────────────────────────────────────────
// Process default and context propagation
// ─────────────────────────────────────────────────────────────────────────────

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = nopLogger{}
)

// SetDefault replaces the process-wide default Logger. Call once at startup.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide default Logger.
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	return l
}

type loggerCtxKey struct{}

// WithContext stores l in ctx. The HTTP middleware uses it to attach a
// request-scoped logger carrying the request id.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Default().
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerCtxKey{}).(Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}
