// Package service evaluates submissions against test cases on a backend.
package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox"
	"coderunner/internal/judge/sandbox/classify"
	"coderunner/internal/judge/sandbox/config"
	"coderunner/internal/judge/sandbox/observer"
	"coderunner/internal/judge/sandbox/profile"
	"coderunner/internal/judge/sandbox/result"
	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkerPoolSize = 4
	defaultQueueTimeout   = 30 * time.Second
	defaultFanOut         = 8
	abortTimeout          = 5 * time.Second
)

// Service is the execution engine. It is safe for concurrent use; every
// evaluation owns its backend session.
type Service struct {
	backend           sandbox.Backend
	languages         config.LanguageCatalog
	metrics           observer.MetricsRecorder
	sem               chan struct{}
	queueTimeout      time.Duration
	fanOut            int
	evaluationTimeout time.Duration
	maxLimits         model.Limits
}

// Config holds service dependencies and settings.
type Config struct {
	Backend   sandbox.Backend
	Languages config.LanguageCatalog
	Metrics   observer.MetricsRecorder
	// WorkerPoolSize bounds concurrent evaluations.
	WorkerPoolSize int
	// QueueTimeout bounds the wait for a free worker.
	QueueTimeout time.Duration
	// FanOut bounds parallel runs of one evaluation on concurrent backends.
	FanOut int
	// EvaluationTimeout bounds a whole evaluation. Zero leaves it to the
	// per-run ceilings.
	EvaluationTimeout time.Duration
	// MaxLimits caps caller supplied limits. Zero fields do not bound.
	MaxLimits model.Limits
}

// NewService creates the execution engine.
func NewService(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("backend is required")
	}
	if cfg.Languages == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("language catalog is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observer.NoopMetricsRecorder{}
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultWorkerPoolSize
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = defaultFanOut
	}
	return &Service{
		backend:           cfg.Backend,
		languages:         cfg.Languages,
		metrics:           cfg.Metrics,
		sem:               make(chan struct{}, poolSize),
		queueTimeout:      cfg.QueueTimeout,
		fanOut:            cfg.FanOut,
		evaluationTimeout: cfg.EvaluationTimeout,
		maxLimits:         cfg.MaxLimits,
	}, nil
}

// BackendName returns the name of the configured backend.
func (s *Service) BackendName() string {
	return s.backend.Name()
}

// MaxLimits returns the ceilings applied to caller supplied limits.
func (s *Service) MaxLimits() model.Limits {
	return s.maxLimits
}

// Languages lists the enabled languages the backend can run.
func (s *Service) Languages() []profile.LanguageSpec {
	enabled := s.languages.Enabled()
	out := make([]profile.LanguageSpec, 0, len(enabled))
	for _, lang := range enabled {
		if s.backend.Supports(lang) {
			out = append(out, lang)
		}
	}
	return out
}

// Kill aborts a running submission when the backend supports it.
func (s *Service) Kill(ctx context.Context, submissionID string) error {
	killer, ok := s.backend.(sandbox.Killer)
	if !ok {
		return appErr.Newf(appErr.ServiceUnavailable, "backend %s cannot abort submissions", s.backend.Name())
	}
	return killer.Kill(ctx, submissionID)
}

func (s *Service) abort(ctx context.Context, submissionID string) {
	if _, ok := s.backend.(sandbox.Killer); !ok {
		return
	}
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := s.Kill(killCtx, submissionID); err != nil {
		logger.Warn(ctx, "abort submission failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "submission aborted", zap.NamedError("cause", context.Cause(ctx)))
}

// Evaluate runs sub against tests in the given mode. The error return is
// reserved for malformed input; every execution problem is reported as a
// verdict inside the result.
func (s *Service) Evaluate(ctx context.Context, sub model.Submission, tests []model.TestCase, mode model.Mode) (result.EvaluationResult, error) {
	if strings.TrimSpace(sub.Source) == "" {
		return result.EvaluationResult{}, appErr.ValidationError("code", "required")
	}
	if strings.TrimSpace(sub.Language) == "" {
		return result.EvaluationResult{}, appErr.ValidationError("language", "required")
	}
	mode, ok := model.ParseMode(string(mode))
	if !ok {
		return result.EvaluationResult{}, appErr.ValidationError("mode", "is not supported")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	requested := sub.Limits.WithDefaults()
	sub.Limits = requested.Clamp(s.maxLimits)
	ctx = logger.WithBackend(logger.WithSubmission(ctx, sub.ID), s.backend.Name())
	if sub.Limits != requested {
		logger.Warn(ctx, "limits lowered to the configured maximum",
			zap.Duration("time_limit", sub.Limits.TimeLimit),
			zap.Int64("memory_kb", sub.Limits.MemoryLimitKB),
		)
	}

	lang, err := s.languages.GetLanguageSpec(ctx, sub.Language)
	if err != nil || !s.backend.Supports(lang) {
		logger.Info(ctx, "unsupported language", zap.String("language", sub.Language))
		return result.NewSystemError("Unsupported language: " + sub.Language), nil
	}

	if len(tests) == 0 {
		return emptyResult(mode), nil
	}

	start := time.Now()
	res := s.evaluate(ctx, sub, lang, tests, mode)
	logger.Info(ctx, "evaluation finished",
		zap.String("language", lang.ID),
		zap.String("mode", string(mode)),
		zap.Int("tests", len(tests)),
		zap.String("kind", string(res.Kind)),
		zap.String("verdict", string(res.Verdict)),
		zap.Int("passed", res.Passed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, sub model.Submission, lang profile.LanguageSpec, tests []model.TestCase, mode model.Mode) result.EvaluationResult {
	if err := s.acquireSlot(ctx); err != nil {
		return systemError(ctx, "acquire worker failed", err)
	}
	defer s.releaseSlot()

	if s.evaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.evaluationTimeout)
		defer cancel()
	}

	session, err := s.backend.Open(ctx, sub, lang)
	if err != nil {
		return systemError(ctx, "open backend session failed", err)
	}
	// A disconnected caller or an expired evaluation leaves nothing running.
	stopAbort := context.AfterFunc(ctx, func() { s.abort(ctx, sub.ID) })
	defer stopAbort()
	defer func() {
		if err := session.Close(ctx); err != nil {
			logger.Warn(ctx, "close backend session failed", zap.Error(err))
		}
	}()

	compiled, err := session.Compile(ctx)
	if err != nil {
		return systemError(ctx, "compile step failed", err)
	}
	if j, ok := classify.Compile(compiled); !ok {
		return compileFailed(j, tests, mode)
	}

	r := &evaluation{
		svc:        s,
		session:    session,
		classifier: s.backend.Classifier(),
		lang:       lang,
		limits:     sub.Limits,
	}
	switch mode {
	case model.ModeCount:
		return r.count(ctx, tests)
	case model.ModeCollect:
		return r.collect(ctx, tests)
	default:
		return r.stopOnFirstFailure(ctx, tests)
	}
}

// evaluation holds the state of one opened session.
type evaluation struct {
	svc        *Service
	session    sandbox.Session
	classifier classify.Classifier
	lang       profile.LanguageSpec
	limits     model.Limits
}

func (e *evaluation) run(ctx context.Context, index int, tc model.TestCase, compare bool) (result.Judgement, result.Outcome) {
	out, err := e.session.Run(ctx, index, tc.Input)
	if err != nil {
		logger.Warn(ctx, "run failed", zap.Int("test", index), zap.Error(err))
		return result.Judgement{Verdict: result.VerdictSE, Message: appErr.Describe(err)}, out
	}
	j := e.classifier.Classify(out, classify.Check{
		Expected:      tc.Expected,
		Compare:       compare,
		TimeLimit:     e.limits.TimeLimit,
		MemoryLimitKB: e.limits.MemoryLimitKB,
	})
	e.svc.metrics.ObserveRun(ctx, e.lang.ID, string(j.Verdict), out.Elapsed, out.MemoryKB)
	return j, out
}

func (e *evaluation) stopOnFirstFailure(ctx context.Context, tests []model.TestCase) result.EvaluationResult {
	for i, tc := range tests {
		j, out := e.run(ctx, i, tc, true)
		if j.Verdict.Accepted() {
			continue
		}
		if j.Verdict == result.VerdictSE {
			return result.NewFailed(j, nil)
		}
		return result.NewFailed(j, &result.FailureDetail{
			TestIndex: i,
			Input:     tc.Input,
			Expected:  tc.Expected,
			Actual:    out.Stdout,
		})
	}
	return result.NewAccepted("")
}

// count runs every test; a failing or erroring test only lowers the count.
func (e *evaluation) count(ctx context.Context, tests []model.TestCase) result.EvaluationResult {
	var passed atomic.Int64
	e.each(ctx, tests, func(i int, tc model.TestCase) {
		if j, _ := e.run(ctx, i, tc, true); j.Verdict.Accepted() {
			passed.Add(1)
		}
	})
	return result.NewCounted(int(passed.Load()), len(tests))
}

func (e *evaluation) collect(ctx context.Context, tests []model.TestCase) result.EvaluationResult {
	outputs := make([]result.RawOutput, len(tests))
	e.each(ctx, tests, func(i int, tc model.TestCase) {
		j, out := e.run(ctx, i, tc, false)
		outputs[i] = result.RawOutput{Input: tc.Input}
		if j.Verdict.Accepted() {
			outputs[i].Output = out.Stdout
			return
		}
		outputs[i].Error = firstNonEmpty(j.Message, j.Verdict.DisplayName())
	})
	return result.NewRawOutputs(outputs)
}

// each visits every test, in parallel when the backend allows it. A test
// never cancels its siblings.
func (e *evaluation) each(ctx context.Context, tests []model.TestCase, fn func(i int, tc model.TestCase)) {
	if !e.svc.backend.Concurrent() {
		for i, tc := range tests {
			fn(i, tc)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(e.svc.fanOut)
	for i, tc := range tests {
		g.Go(func() error {
			fn(i, tc)
			return nil
		})
	}
	_ = g.Wait()
}

func emptyResult(mode model.Mode) result.EvaluationResult {
	switch mode {
	case model.ModeCount:
		return result.NewCounted(0, 0)
	case model.ModeCollect:
		return result.NewRawOutputs(nil)
	default:
		return result.NewAccepted("")
	}
}

func compileFailed(j result.Judgement, tests []model.TestCase, mode model.Mode) result.EvaluationResult {
	switch mode {
	case model.ModeCount:
		return result.NewCounted(0, len(tests))
	case model.ModeCollect:
		outputs := make([]result.RawOutput, len(tests))
		for i, tc := range tests {
			outputs[i] = result.RawOutput{Input: tc.Input, Error: firstNonEmpty(j.Message, j.Verdict.DisplayName())}
		}
		return result.NewRawOutputs(outputs)
	default:
		// the first test is reported with no output
		return result.NewFailed(j, &result.FailureDetail{Input: tests[0].Input, Expected: tests[0].Expected})
	}
}

func systemError(ctx context.Context, msg string, err error) result.EvaluationResult {
	logger.Error(ctx, msg, zap.Error(err))
	return result.NewSystemError(appErr.Describe(err))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
