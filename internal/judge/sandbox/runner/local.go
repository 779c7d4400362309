// Package runner implements the local container backend: one work area and
// one container per submission, compiled once and run once per test case.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox"
	"coderunner/internal/judge/sandbox/classify"
	"coderunner/internal/judge/sandbox/engine"
	"coderunner/internal/judge/sandbox/observer"
	"coderunner/internal/judge/sandbox/profile"
	"coderunner/internal/judge/sandbox/result"
	"coderunner/internal/judge/sandbox/workspace"
	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// BackendName identifies the local backend.
	BackendName = "local"

	compileOutputLimit = 64 * 1024
	stderrLimit        = 64 * 1024
)

// Engine is the container engine used by the local backend.
type Engine interface {
	Config() engine.Config
	HostDir(workRoot, dir string) string
	Start(ctx context.Context, spec engine.ContainerSpec) (Container, error)
	KillSubmission(ctx context.Context, submissionID string) error
}

// Container is one started execution context.
type Container interface {
	Alive() bool
	Exec(ctx context.Context, req engine.ExecRequest) (engine.ExecResult, error)
	SetMemory(ctx context.Context, memoryKB int64) error
	Remove(ctx context.Context) error
}

// DockerEngine adapts *engine.Engine to the Engine interface.
type DockerEngine struct {
	*engine.Engine
}

// Start implements Engine.
func (d DockerEngine) Start(ctx context.Context, spec engine.ContainerSpec) (Container, error) {
	c, err := d.Engine.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ sandbox.Backend = (*LocalBackend)(nil)

// LocalBackend runs submissions in containers on this host.
type LocalBackend struct {
	engine     Engine
	workspaces *workspace.Manager
	metrics    observer.MetricsRecorder
}

// NewLocalBackend creates the local backend. metrics may be nil.
func NewLocalBackend(eng Engine, workspaces *workspace.Manager, metrics observer.MetricsRecorder) *LocalBackend {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &LocalBackend{engine: eng, workspaces: workspaces, metrics: metrics}
}

func (b *LocalBackend) Name() string { return BackendName }

func (b *LocalBackend) Supports(lang profile.LanguageSpec) bool {
	return lang.Image != "" && lang.RunCmdTpl != "" && (!lang.CompileEnabled || lang.CompileCmdTpl != "")
}

// Concurrent is false: every run of a submission shares one capped container.
func (b *LocalBackend) Concurrent() bool { return false }

func (b *LocalBackend) Classifier() classify.Classifier { return classify.Local{} }

// Kill aborts every container of the submission.
func (b *LocalBackend) Kill(ctx context.Context, submissionID string) error {
	return b.engine.KillSubmission(ctx, submissionID)
}

// Open allocates the work area, writes the source and starts the container.
func (b *LocalBackend) Open(ctx context.Context, sub model.Submission, lang profile.LanguageSpec) (_ sandbox.Session, err error) {
	cfg := b.engine.Config()
	area, err := b.workspaces.Create(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if releaseErr := area.Release(ctx); releaseErr != nil {
				logger.Warn(ctx, "release work area failed", zap.Error(releaseErr))
			}
		}
	}()

	if err := area.WriteFile(lang.SourceFile, sub.Source); err != nil {
		return nil, err
	}
	runCmd, err := profile.BuildCommand(lang.RunCmdTpl, lang, cfg.WorkDir)
	if err != nil {
		return nil, err
	}

	limits := sub.Limits.WithDefaults()
	s := &localSession{
		backend:     b,
		sub:         sub,
		lang:        lang,
		area:        area,
		runCmd:      profile.ShellJoin(runCmd),
		timeLimit:   lang.ScaleTime(limits.TimeLimit),
		runMemoryKB: lang.ScaleMemory(limits.MemoryLimitKB),
		pidsLimit:   limits.PidsLimit,
	}
	memoryKB := s.runMemoryKB
	if lang.CompileEnabled && cfg.CompileMemoryKB > memoryKB {
		memoryKB = cfg.CompileMemoryKB
	}
	if err := s.start(ctx, memoryKB); err != nil {
		return nil, err
	}
	return s, nil
}

type localSession struct {
	backend     *LocalBackend
	sub         model.Submission
	lang        profile.LanguageSpec
	area        *workspace.WorkArea
	container   Container
	runCmd      string
	timeLimit   time.Duration
	runMemoryKB int64
	pidsLimit   int64
	// memoryKB is the ceiling the current container was started with.
	memoryKB int64
}

func (s *localSession) start(ctx context.Context, memoryKB int64) error {
	eng := s.backend.engine
	c, err := eng.Start(ctx, engine.ContainerSpec{
		SubmissionID: s.sub.ID,
		Image:        s.lang.Image,
		HostDir:      eng.HostDir(s.backend.workspaces.Root(), s.area.Dir),
		MemoryKB:     memoryKB,
		PidsLimit:    s.pidsLimit,
		Env:          s.lang.Env,
	})
	if err != nil {
		return err
	}
	s.container = c
	s.memoryKB = memoryKB
	return nil
}

// ensureRunnable replaces a container killed by a ceiling breach.
func (s *localSession) ensureRunnable(ctx context.Context) error {
	if s.container != nil && s.container.Alive() {
		return nil
	}
	if s.container != nil {
		_ = s.container.Remove(ctx)
	}
	logger.Info(ctx, "recreating execution container", zap.String("language", s.lang.ID))
	return s.start(ctx, s.runMemoryKB)
}

func (s *localSession) Compile(ctx context.Context) (result.CompileOutcome, error) {
	if !s.lang.CompileEnabled {
		return result.CompileOutcome{OK: true}, nil
	}
	cfg := s.backend.engine.Config()
	argv, err := profile.BuildCommand(s.lang.CompileCmdTpl, s.lang, cfg.WorkDir)
	if err != nil {
		return result.CompileOutcome{}, err
	}
	script := fmt.Sprintf("timeout -k 1 %s %s > %s 2>&1",
		seconds(cfg.CompileTimeout), profile.ShellJoin(argv), workspace.CompileErrorName)

	res, err := s.container.Exec(ctx, engine.ExecRequest{
		Script:  script,
		Env:     s.lang.Env,
		Ceiling: cfg.CompileTimeout + cfg.Grace,
	})
	if err != nil {
		return result.CompileOutcome{}, err
	}
	if res.TimedOut || res.ExitCode == classify.ExitTimeout {
		s.backend.metrics.ObserveCompile(ctx, s.lang.ID, false, res.Elapsed)
		return result.CompileOutcome{ExitCode: res.ExitCode, Output: "Compilation timed out", Elapsed: res.Elapsed}, nil
	}

	output, _, err := s.area.ReadFile(workspace.CompileErrorName, compileOutputLimit)
	if err != nil {
		return result.CompileOutcome{}, err
	}
	ok := res.ExitCode == 0
	if ok && cfg.WarningsFatal() && strings.TrimSpace(output) != "" {
		ok = false
	}
	s.backend.metrics.ObserveCompile(ctx, s.lang.ID, ok, res.Elapsed)
	if ok && s.memoryKB != s.runMemoryKB {
		if err := s.container.SetMemory(ctx, s.runMemoryKB); err != nil {
			return result.CompileOutcome{}, err
		}
		s.memoryKB = s.runMemoryKB
	}
	return result.CompileOutcome{OK: ok, ExitCode: res.ExitCode, Output: output, Elapsed: res.Elapsed}, nil
}

func (s *localSession) Run(ctx context.Context, index int, input string) (result.Outcome, error) {
	if err := s.ensureRunnable(ctx); err != nil {
		return result.Outcome{}, err
	}
	if err := s.area.WriteFile(workspace.InputName(index), input); err != nil {
		return result.Outcome{}, err
	}
	cfg := s.backend.engine.Config()
	script := fmt.Sprintf("ulimit -f %d; timeout -k 1 %s %s < %s > %s 2> %s; code=$?; echo $code > %s; exit $code",
		cfg.OutputLimitKB*2,
		seconds(s.timeLimit),
		s.runCmd,
		workspace.InputName(index),
		workspace.OutputName(index),
		workspace.ErrorName(index),
		workspace.StatusName(index),
	)

	res, err := s.container.Exec(ctx, engine.ExecRequest{
		Script:  script,
		Env:     s.lang.Env,
		Ceiling: s.timeLimit + cfg.Grace,
	})
	if err != nil {
		return result.Outcome{}, err
	}
	if res.TimedOut {
		return result.Outcome{Termination: result.TermTimedOut, Elapsed: res.Elapsed, TimeLimit: s.timeLimit}, nil
	}

	stdout, _, err := s.area.ReadFile(workspace.OutputName(index), cfg.OutputLimitKB*1024)
	if err != nil {
		return result.Outcome{}, err
	}
	stderr, _, err := s.area.ReadFile(workspace.ErrorName(index), stderrLimit)
	if err != nil {
		return result.Outcome{}, err
	}
	return result.Outcome{
		Termination: result.TermExited,
		ExitCode:    res.ExitCode,
		Stdout:      stdout,
		Stderr:      stderr,
		Elapsed:     res.Elapsed,
		TimeLimit:   s.timeLimit,
	}, nil
}

// Close removes the container and releases the work area.
func (s *localSession) Close(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if s.container != nil {
		if err := s.container.Remove(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.area.Release(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return appErr.Wrap(errs[0], appErr.SandboxExecError)
	}
	return nil
}

// seconds formats d for timeout(1). A zero duration disables timeout, so
// anything shorter than a millisecond is rounded up to one.
func seconds(d time.Duration) string {
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", d.Seconds()), "0"), ".")
}
