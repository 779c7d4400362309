// Package logger is a zap wrapper that tags every line with the ids carried by ctx.
package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"coderunner/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *Logger

// Logger wraps zap logger with context support
type Logger struct {
	zap *zap.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	Format     string `yaml:"format"`     // json, console
	OutputPath string `yaml:"outputPath"` // file path, "stdout" or "stderr"
	ErrorPath  string `yaml:"errorPath"`  // receives error level and above as well
}

var contextFields = []contextkey.Key{
	contextkey.TraceID,
	contextkey.RequestID,
	contextkey.SubmissionID,
	contextkey.Backend,
}

// Init replaces the global logger.
func Init(cfg Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	return nil
}

func NewLogger(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	out, err := openSink(cfg.OutputPath, "stdout")
	if err != nil {
		return nil, err
	}
	errOut, err := openSink(cfg.ErrorPath, "stderr")
	if err != nil {
		return nil, err
	}

	enc := newEncoder(cfg.Format)
	errorsOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && l >= level
	})
	core := zapcore.NewTee(
		zapcore.NewCore(enc, out, level),
		zapcore.NewCore(enc.Clone(), errOut, errorsOnly),
	)
	return &Logger{
		zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)),
	}, nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(path, fallback string) (zapcore.WriteSyncer, error) {
	if path == "" {
		path = fallback
	}
	switch path {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithContext returns the zap logger annotated with fields carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if fields := extractFieldsFromContext(ctx); len(fields) > 0 {
		return l.zap.With(fields...)
	}
	return l.zap
}

func extractFieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	for _, k := range contextFields {
		if v := ctx.Value(k); v != nil {
			fields = append(fields, zap.String(string(k), fmt.Sprint(v)))
		}
	}
	return fields
}

// WithSubmission returns ctx tagged with the submission id used in log lines.
func WithSubmission(ctx context.Context, submissionID string) context.Context {
	if submissionID == "" {
		return ctx
	}
	return context.WithValue(ctx, contextkey.SubmissionID, submissionID)
}

// WithBackend returns ctx tagged with the backend name used in log lines.
func WithBackend(ctx context.Context, backend string) context.Context {
	if backend == "" {
		return ctx
	}
	return context.WithValue(ctx, contextkey.Backend, backend)
}

// The package level functions are no-ops until Init succeeds.

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	write(ctx, zapcore.ErrorLevel, msg, fields)
}

func write(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if globalLogger == nil {
		return
	}
	if ce := globalLogger.WithContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Sync flushes the global logger.
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.Sync()
}
