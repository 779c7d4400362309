// Package result defines execution outcomes, verdicts and evaluation results.
package result

// Verdict represents the classified outcome of one test case or evaluation.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictCE  Verdict = "CE"
	VerdictRE  Verdict = "RE"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictSE  Verdict = "SE"
)

var verdictNames = map[Verdict]string{
	VerdictAC:  "Accepted",
	VerdictWA:  "Wrong Answer",
	VerdictCE:  "Compilation Error",
	VerdictRE:  "Runtime Error",
	VerdictTLE: "Time Limit Exceeded",
	VerdictMLE: "Memory Limit Exceeded",
	VerdictSE:  "System Error",
}

// DisplayName returns the human readable verdict name.
func (v Verdict) DisplayName() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return string(v)
}

// Accepted reports whether v is AC.
func (v Verdict) Accepted() bool {
	return v == VerdictAC
}

// RuntimeReason narrows a runtime error down to its cause.
type RuntimeReason string

const (
	ReasonNone           RuntimeReason = ""
	ReasonSIGSEGV        RuntimeReason = "SIGSEGV"
	ReasonSIGFPE         RuntimeReason = "SIGFPE"
	ReasonSIGABRT        RuntimeReason = "SIGABRT"
	ReasonSIGKILL        RuntimeReason = "SIGKILL"
	ReasonOutputExceeded RuntimeReason = "SIGXFSZ"
	ReasonNonZeroExit    RuntimeReason = "NZEC"
	ReasonExecFormat     RuntimeReason = "EXEC_FORMAT"
	ReasonOther          RuntimeReason = "OTHER"
)

// Judgement is the classifier's decision for one test case.
type Judgement struct {
	Verdict Verdict
	Reason  RuntimeReason
	Message string
}

// Kind discriminates the EvaluationResult union.
type Kind string

const (
	KindAccepted   Kind = "accepted"
	KindFailed     Kind = "failed"
	KindCounted    Kind = "counted"
	KindRawOutputs Kind = "raw_outputs"
)

// FailureDetail identifies the test case that decided a failed evaluation.
type FailureDetail struct {
	TestIndex int    `json:"testIndex"`
	Input     string `json:"input"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"output"`
}

// RawOutput is the unjudged result of running one input.
type RawOutput struct {
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// EvaluationResult is what callers receive from one evaluation.
// Which fields are meaningful depends on Kind.
type EvaluationResult struct {
	Kind    Kind           `json:"kind"`
	Verdict Verdict        `json:"verdict,omitempty"`
	Reason  RuntimeReason  `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	Failure *FailureDetail `json:"failure,omitempty"`
	Passed  int            `json:"passed"`
	Total   int            `json:"total"`
	Outputs []RawOutput    `json:"outputs,omitempty"`
}

const (
	MessageAllPassed   = "All test cases passed successfully"
	MessageWrongAnswer = "Output did not match expected result"
)

// NewAccepted builds the result of an evaluation where every test passed.
func NewAccepted(message string) EvaluationResult {
	if message == "" {
		message = MessageAllPassed
	}
	return EvaluationResult{Kind: KindAccepted, Verdict: VerdictAC, Message: message}
}

// NewFailed builds the result of an evaluation decided by one failing test.
// failure may be nil when no single test is to blame (compile or system errors).
func NewFailed(j Judgement, failure *FailureDetail) EvaluationResult {
	return EvaluationResult{
		Kind:    KindFailed,
		Verdict: j.Verdict,
		Reason:  j.Reason,
		Message: j.Message,
		Failure: failure,
	}
}

// NewSystemError builds a failed result for infrastructure faults.
func NewSystemError(message string) EvaluationResult {
	return NewFailed(Judgement{Verdict: VerdictSE, Message: message}, nil)
}

// NewCounted builds an aggregate pass count.
func NewCounted(passed, total int) EvaluationResult {
	return EvaluationResult{Kind: KindCounted, Passed: passed, Total: total}
}

// NewRawOutputs builds a collect-mode result.
func NewRawOutputs(outputs []RawOutput) EvaluationResult {
	if outputs == nil {
		outputs = []RawOutput{}
	}
	return EvaluationResult{Kind: KindRawOutputs, Outputs: outputs, Total: len(outputs)}
}

// IsAccepted reports whether the evaluation is an unconditional pass.
func (r EvaluationResult) IsAccepted() bool {
	return r.Kind == KindAccepted
}
