// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"
	"time"

	"coderunner/pkg/utils/logger"

	"go.uber.org/zap"
)

// MetricsRecorder records per-run execution metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, elapsed time.Duration)
	ObserveRun(ctx context.Context, languageID string, verdict string, elapsed time.Duration, memoryKB int64)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, elapsed time.Duration) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, languageID string, verdict string, elapsed time.Duration, memoryKB int64) {
}

// LogMetricsRecorder writes every observation as a debug log line.
type LogMetricsRecorder struct{}

func (LogMetricsRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, elapsed time.Duration) {
	logger.Debug(ctx, "compile finished",
		zap.String("language", languageID),
		zap.Bool("ok", ok),
		zap.Duration("elapsed", elapsed),
	)
}

func (LogMetricsRecorder) ObserveRun(ctx context.Context, languageID string, verdict string, elapsed time.Duration, memoryKB int64) {
	logger.Debug(ctx, "run finished",
		zap.String("language", languageID),
		zap.String("verdict", verdict),
		zap.Duration("elapsed", elapsed),
		zap.Int64("memory_kb", memoryKB),
	)
}
