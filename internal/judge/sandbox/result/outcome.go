package result

import "time"

// Termination describes how a run ended.
type Termination string

const (
	TermExited       Termination = "exited"
	TermSignaled     Termination = "signaled"
	TermTimedOut     Termination = "timed_out"
	TermBackendError Termination = "backend_error"
)

// RemoteStatus is the structured status reported by a remote judge.
type RemoteStatus struct {
	ID          int
	Description string
	Message     string
}

// Outcome is the raw evidence of one run. It never reaches callers
// without going through a classifier first.
type Outcome struct {
	Termination Termination
	ExitCode    int
	Signal      string
	Stdout      string
	Stderr      string
	Elapsed     time.Duration
	MemoryKB    int64
	// TimeLimit is the limit the backend actually enforced, when it scaled
	// the requested one.
	TimeLimit time.Duration
	// CompileOutput is set by backends that compile per run.
	CompileOutput string
	// Remote is set only by remote backends.
	Remote *RemoteStatus
}

// CompileOutcome is the result of the one-off build step of a session.
type CompileOutcome struct {
	OK       bool
	ExitCode int
	Output   string
	Elapsed  time.Duration
}
