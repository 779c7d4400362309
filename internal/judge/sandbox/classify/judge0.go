package classify

import (
	"fmt"

	"coderunner/internal/judge/sandbox/result"
)

// Judge0 status ids.
const (
	StatusInQueue       = 1
	StatusProcessing    = 2
	StatusAccepted      = 3
	StatusWrongAnswer   = 4
	StatusTimeLimit     = 5
	StatusCompilation   = 6
	StatusRTSigsegv     = 7
	StatusRTSigxfsz     = 8
	StatusRTSigfpe      = 9
	StatusRTSigabrt     = 10
	StatusRTNzec        = 11
	StatusRTOther       = 12
	StatusInternalError = 13
	StatusExecFormat    = 14

	// StatusFinishedThreshold is the first id that denotes a terminal status.
	StatusFinishedThreshold = StatusAccepted
)

// Finished reports whether a Judge0 status id is terminal.
func Finished(statusID int) bool {
	return statusID >= StatusFinishedThreshold
}

var runtimeReasons = map[int]result.RuntimeReason{
	StatusRTSigsegv:  result.ReasonSIGSEGV,
	StatusRTSigxfsz:  result.ReasonOutputExceeded,
	StatusRTSigfpe:   result.ReasonSIGFPE,
	StatusRTSigabrt:  result.ReasonSIGABRT,
	StatusRTNzec:     result.ReasonNonZeroExit,
	StatusRTOther:    result.ReasonOther,
	StatusExecFormat: result.ReasonExecFormat,
}

// Judge0 classifies runs of the remote backend from the structured status.
type Judge0 struct{}

// Classify implements Classifier.
func (Judge0) Classify(o result.Outcome, check Check) result.Judgement {
	if o.Termination == result.TermBackendError {
		return result.Judgement{Verdict: result.VerdictSE, Message: firstNonEmpty(o.Stderr, "remote judge failed")}
	}
	var status result.RemoteStatus
	if o.Remote != nil {
		status = *o.Remote
	}

	switch status.ID {
	case StatusAccepted:
		return compareOutput(o.Stdout, check)
	case StatusWrongAnswer:
		return result.Judgement{Verdict: result.VerdictWA, Message: result.MessageWrongAnswer}
	case StatusTimeLimit:
		return result.Judgement{Verdict: result.VerdictTLE, Message: firstNonEmpty(status.Description, result.VerdictTLE.DisplayName())}
	case StatusCompilation:
		return result.Judgement{
			Verdict: result.VerdictCE,
			Message: truncate(firstNonEmpty(o.CompileOutput, o.Stderr, status.Description)),
		}
	case StatusInternalError:
		return result.Judgement{
			Verdict: result.VerdictSE,
			Message: firstNonEmpty(status.Message, status.Description, "remote judge internal error"),
		}
	case StatusInQueue, StatusProcessing:
		return result.Judgement{Verdict: result.VerdictSE, Message: "remote submission did not finish"}
	}

	if reason, ok := runtimeReasons[status.ID]; ok {
		// Judge0 has no dedicated memory status; a crash at the memory ceiling
		// or with an allocation failure on stderr is reported as MLE.
		if hasMemoryMarker(o.Stderr) || (check.MemoryLimitKB > 0 && o.MemoryKB >= check.MemoryLimitKB) {
			return memoryLimit()
		}
		return result.Judgement{
			Verdict: result.VerdictRE,
			Reason:  reason,
			Message: truncate(firstNonEmpty(o.Stderr, o.CompileOutput, status.Description)),
		}
	}

	msg := status.Description
	if msg == "" {
		msg = fmt.Sprintf("unknown remote status %d", status.ID)
	}
	if stderr := firstNonEmpty(o.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return result.Judgement{
		Verdict: result.VerdictRE,
		Reason:  result.ReasonOther,
		Message: truncate(msg),
	}
}
