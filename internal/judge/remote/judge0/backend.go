package judge0

import (
	"context"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox"
	"coderunner/internal/judge/sandbox/classify"
	"coderunner/internal/judge/sandbox/profile"
	"coderunner/internal/judge/sandbox/result"
)

// BackendName identifies the remote backend.
const BackendName = "judge0"

// Executor runs one submit and poll cycle.
type Executor interface {
	Execute(ctx context.Context, req SubmitRequest) (Result, error)
}

var _ sandbox.Backend = (*Backend)(nil)

// Backend delegates every run to the remote judge.
type Backend struct {
	exec Executor
}

// NewBackend wraps an executor, usually a *Client.
func NewBackend(exec Executor) *Backend {
	return &Backend{exec: exec}
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Supports(lang profile.LanguageSpec) bool { return lang.RemoteID > 0 }

// Concurrent is true: every run is an independent remote submission.
func (b *Backend) Concurrent() bool { return true }

func (b *Backend) Classifier() classify.Classifier { return classify.Judge0{} }

func (b *Backend) Open(ctx context.Context, sub model.Submission, lang profile.LanguageSpec) (sandbox.Session, error) {
	return &session{exec: b.exec, sub: sub, lang: lang, limits: sub.Limits.WithDefaults()}, nil
}

type session struct {
	exec   Executor
	sub    model.Submission
	lang   profile.LanguageSpec
	limits model.Limits
}

// Compile is a no-op; the remote judge compiles on every submission and
// reports failures through its status.
func (s *session) Compile(ctx context.Context) (result.CompileOutcome, error) {
	return result.CompileOutcome{OK: true}, nil
}

func (s *session) Run(ctx context.Context, index int, input string) (result.Outcome, error) {
	res, err := s.exec.Execute(ctx, SubmitRequest{
		LanguageID:  s.lang.RemoteID,
		SourceCode:  s.sub.Source,
		Stdin:       input,
		TimeLimit:   s.limits.TimeLimit,
		MemoryLimit: s.limits.MemoryLimitKB,
	})
	if err != nil {
		return result.Outcome{}, err
	}
	return toOutcome(res), nil
}

func (s *session) Close(ctx context.Context) error { return nil }

func toOutcome(res Result) result.Outcome {
	return result.Outcome{
		Termination:   result.TermExited,
		ExitCode:      res.ExitCode,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		Elapsed:       res.Time,
		MemoryKB:      res.MemoryKB,
		CompileOutput: res.CompileOutput,
		Remote: &result.RemoteStatus{
			ID:          res.StatusID,
			Description: res.Description,
			Message:     res.Message,
		},
	}
}
