package classify

import (
	"fmt"
	"strings"

	"coderunner/internal/judge/sandbox/result"
)

// Exit codes produced by the run wrapper (`timeout` plus a POSIX shell).
const (
	ExitTimeout    = 124
	ExitSIGABRT    = 128 + 6
	ExitSIGFPE     = 128 + 8
	ExitSIGKILL    = 128 + 9
	ExitSIGSEGV    = 128 + 11
	ExitSIGXFSZ    = 128 + 25
	ExitNotRunable = 126
	ExitNotFound   = 127
)

type signalRule struct {
	exitCode int
	signal   string
	marker   string
	reason   result.RuntimeReason
	message  string
}

var signalRules = []signalRule{
	{ExitSIGSEGV, "SIGSEGV", "Segmentation fault", result.ReasonSIGSEGV, "Segmentation fault"},
	{ExitSIGFPE, "SIGFPE", "Floating point exception", result.ReasonSIGFPE, "Floating point exception"},
	{ExitSIGABRT, "SIGABRT", "Aborted", result.ReasonSIGABRT, "Aborted"},
	{ExitSIGXFSZ, "SIGXFSZ", "File size limit exceeded", result.ReasonOutputExceeded, "Output limit exceeded"},
}

// Local classifies runs of the container backend by inspecting exit codes
// and stderr text.
type Local struct{}

// Classify implements Classifier.
func (Local) Classify(o result.Outcome, check Check) result.Judgement {
	switch o.Termination {
	case result.TermBackendError:
		return result.Judgement{Verdict: result.VerdictSE, Message: firstNonEmpty(o.Stderr, "execution backend failed")}
	case result.TermTimedOut:
		return timeLimit()
	}

	// Text markers only explain an abnormal exit; a clean exit may log anything.
	failed := o.ExitCode != 0
	if o.ExitCode == ExitTimeout || (failed && strings.Contains(o.Stderr, "Time limit exceeded")) {
		return timeLimit()
	}
	if o.ExitCode == ExitSIGKILL || o.Signal == "SIGKILL" {
		// timeout -k escalates to SIGKILL only after the limit has passed,
		// otherwise the kernel OOM killer is the only other sender.
		limit := check.TimeLimit
		if o.TimeLimit > 0 {
			limit = o.TimeLimit
		}
		if limit > 0 && o.Elapsed >= limit {
			return timeLimit()
		}
		return memoryLimit()
	}
	if failed && hasMemoryMarker(o.Stderr) {
		return memoryLimit()
	}
	if check.MemoryLimitKB > 0 && o.MemoryKB > check.MemoryLimitKB {
		return memoryLimit()
	}
	for _, rule := range signalRules {
		if o.ExitCode == rule.exitCode || o.Signal == rule.signal || (failed && strings.Contains(o.Stderr, rule.marker)) {
			return result.Judgement{
				Verdict: result.VerdictRE,
				Reason:  rule.reason,
				Message: truncate(firstNonEmpty(o.Stderr, rule.message)),
			}
		}
	}
	if o.Termination == result.TermSignaled {
		return result.Judgement{
			Verdict: result.VerdictRE,
			Reason:  result.ReasonOther,
			Message: truncate(firstNonEmpty(o.Stderr, fmt.Sprintf("Killed by signal %s", o.Signal))),
		}
	}
	if o.ExitCode == ExitNotRunable || o.ExitCode == ExitNotFound {
		return result.Judgement{
			Verdict: result.VerdictRE,
			Reason:  result.ReasonExecFormat,
			Message: truncate(firstNonEmpty(o.Stderr, "program could not be executed")),
		}
	}
	if o.ExitCode != 0 {
		return result.Judgement{
			Verdict: result.VerdictRE,
			Reason:  result.ReasonNonZeroExit,
			Message: truncate(firstNonEmpty(o.Stderr, fmt.Sprintf("Process exited with code %d", o.ExitCode))),
		}
	}
	return compareOutput(o.Stdout, check)
}

func timeLimit() result.Judgement {
	return result.Judgement{Verdict: result.VerdictTLE, Message: result.VerdictTLE.DisplayName()}
}

func memoryLimit() result.Judgement {
	return result.Judgement{Verdict: result.VerdictMLE, Message: result.VerdictMLE.DisplayName()}
}
