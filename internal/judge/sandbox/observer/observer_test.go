package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coderunner/pkg/utils/logger"
)

func TestNoopRecorderAcceptsObservations(t *testing.T) {
	var rec MetricsRecorder = NoopMetricsRecorder{}
	rec.ObserveCompile(context.Background(), "cpp", true, time.Second)
	rec.ObserveRun(context.Background(), "cpp", "AC", time.Second, 1024)
}

func TestLogRecorderWritesDebugLines(t *testing.T) {
	out := filepath.Join(t.TempDir(), "metrics.log")
	if err := logger.Init(logger.Config{Level: "debug", Format: "json", OutputPath: out, ErrorPath: os.DevNull}); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	var rec MetricsRecorder = LogMetricsRecorder{}
	ctx := logger.WithSubmission(context.Background(), "sub-9")
	rec.ObserveCompile(ctx, "go", false, 150*time.Millisecond)
	rec.ObserveRun(ctx, "go", "TLE", 2*time.Second, 2048)
	_ = logger.Sync()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	for _, want := range []string{"compile finished", "run finished", `"verdict":"TLE"`, `"memory_kb":2048`, `"submission_id":"sub-9"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("log output missing %s:\n%s", want, text)
		}
	}
}
