// Package sandbox defines the contract between the execution engine and the
// backends that actually run submitted code.
package sandbox

import (
	"context"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox/classify"
	"coderunner/internal/judge/sandbox/profile"
	"coderunner/internal/judge/sandbox/result"
)

// Backend executes submissions either in local containers or on a remote judge.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Supports reports whether the backend can run the language at all.
	Supports(lang profile.LanguageSpec) bool
	// Concurrent reports whether runs of one session may overlap.
	Concurrent() bool
	// Classifier returns the verdict classifier matching the backend's evidence.
	Classifier() classify.Classifier
	// Open prepares the resources of one submission. The caller must Close
	// the returned session on every path.
	Open(ctx context.Context, sub model.Submission, lang profile.LanguageSpec) (Session, error)
}

// Session owns the execution resources of one submission.
type Session interface {
	// Compile builds the submission once. Backends without a separate build
	// step return an OK outcome.
	Compile(ctx context.Context) (result.CompileOutcome, error)
	// Run executes the program on one input. index is the position of the
	// test case and keeps per-run artifacts apart.
	Run(ctx context.Context, index int, input string) (result.Outcome, error)
	// Close releases everything Open and Run allocated.
	Close(ctx context.Context) error
}

// Killer is implemented by backends that can abort a submission in flight.
type Killer interface {
	Kill(ctx context.Context, submissionID string) error
}
