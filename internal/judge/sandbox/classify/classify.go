// Package classify maps raw execution evidence to verdicts.
package classify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"coderunner/internal/judge/sandbox/normalize"
	"coderunner/internal/judge/sandbox/result"
)

// Check carries what a classifier needs besides the outcome itself.
type Check struct {
	Expected string
	// Compare is false when the caller only collects raw output.
	Compare       bool
	TimeLimit     time.Duration
	MemoryLimitKB int64
}

// Classifier turns one run outcome into a judgement.
type Classifier interface {
	Classify(outcome result.Outcome, check Check) result.Judgement
}

// Compile judges the build step shared by every backend that compiles once.
func Compile(c result.CompileOutcome) (result.Judgement, bool) {
	if c.OK {
		return result.Judgement{Verdict: result.VerdictAC}, true
	}
	msg := strings.TrimSpace(c.Output)
	if msg == "" {
		msg = fmt.Sprintf("compiler exited with code %d", c.ExitCode)
	}
	return result.Judgement{Verdict: result.VerdictCE, Message: truncate(msg)}, false
}

func compareOutput(stdout string, check Check) result.Judgement {
	if !check.Compare || normalize.Equal(stdout, check.Expected) {
		return result.Judgement{Verdict: result.VerdictAC}
	}
	return result.Judgement{Verdict: result.VerdictWA, Message: result.MessageWrongAnswer}
}

// memoryMarkers are stderr fragments that runtimes print when an allocation fails.
var memoryMarkers = []string{
	"MemoryError",
	"OutOfMemoryError",
	"std::bad_alloc",
	"Cannot allocate memory",
	"JavaScript heap out of memory",
	"runtime: out of memory",
	"memory allocation of",
	"failed to allocate memory",
	"NoMemoryError",
}

func hasMemoryMarker(stderr string) bool {
	for _, m := range memoryMarkers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}

const maxMessageBytes = 4096

func truncate(msg string) string {
	if len(msg) <= maxMessageBytes {
		return msg
	}
	cut := maxMessageBytes
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "\n... (truncated)"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
