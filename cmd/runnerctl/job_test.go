package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coderunner/internal/judge/sandbox/result"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJobWithSourceFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sum.py", "print(sum(map(int, input().split())))\n")
	path := writeFile(t, dir, "job.toml", `
language = "Python"
source_file = "sum.py"
time_limit = 1.5
memory_limit = 65536
mode = "count"

[[tests]]
input = "1 2 3 4 5"
expected = "15"

[[tests]]
input = "2 2"
expected = "4"
`)
	j, err := loadJob(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	sub := j.submission()
	if sub.Language != "python" || !strings.Contains(sub.Source, "sum(map") {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if sub.Limits.TimeLimit != 1500*time.Millisecond || sub.Limits.MemoryLimitKB != 65536 {
		t.Fatalf("unexpected limits %+v", sub.Limits)
	}
	tests := j.testCases()
	if len(tests) != 2 || tests[0].Expected != "15" || j.Mode != "count" {
		t.Fatalf("unexpected tests %+v", tests)
	}
}

func TestLoadJobRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "job.toml", `language = "cpp"`)
	if _, err := loadJob(path); err == nil {
		t.Fatal("expected error without source")
	}
	path = writeFile(t, dir, "nolang.toml", `source = "int main(){}"`)
	if _, err := loadJob(path); err == nil {
		t.Fatal("expected error without language")
	}
}

func TestPrintResult(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printResult(&buf, result.NewFailed(
		result.Judgement{Verdict: result.VerdictWA, Message: result.MessageWrongAnswer},
		&result.FailureDetail{TestIndex: 0, Input: "1 2 3 4 5", Expected: "16", Actual: "15\n"},
	))
	out := buf.String()
	if !strings.HasPrefix(out, "Wrong Answer Output did not match") || !strings.Contains(out, "test #1") || !strings.Contains(out, "15") {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	printResult(&buf, result.NewCounted(1, 2))
	if buf.String() != "1/2 test cases passed\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPassed(t *testing.T) {
	if !passed(result.NewAccepted("")) || passed(result.NewCounted(1, 2)) || !passed(result.NewCounted(0, 0)) {
		t.Fatal("unexpected pass decision")
	}
	if passed(result.NewRawOutputs([]result.RawOutput{{Error: "boom"}})) {
		t.Fatal("collected errors are not a pass")
	}
}

func TestReportExitCode(t *testing.T) {
	color.NoColor = true
	failed := result.NewFailed(result.Judgement{Verdict: result.VerdictTLE, Message: "Time Limit Exceeded"}, nil)
	for _, asJSON := range []bool{false, true} {
		var buf bytes.Buffer
		err := report(&buf, failed, asJSON)
		var exit cli.ExitCoder
		if !errors.As(err, &exit) || exit.ExitCode() != 2 {
			t.Fatalf("json=%v: expected exit status 2, got %v", asJSON, err)
		}
		if buf.Len() == 0 {
			t.Fatalf("json=%v: the result must still be printed", asJSON)
		}
	}
	var buf bytes.Buffer
	if err := report(&buf, result.NewCounted(2, 2), true); err != nil {
		t.Fatalf("passing result must exit cleanly: %v", err)
	}
	if !strings.Contains(buf.String(), `"passed": 2`) {
		t.Fatalf("unexpected json %q", buf.String())
	}
}
