package app

import (
	"context"
	"fmt"
	"time"

	"coderunner/internal/common/cache"
	"coderunner/internal/common/ratelimit"
	"coderunner/internal/common/storage"
	"coderunner/internal/judge/remote/judge0"
	"coderunner/internal/judge/sandbox"
	sandboxconfig "coderunner/internal/judge/sandbox/config"
	"coderunner/internal/judge/sandbox/engine"
	"coderunner/internal/judge/sandbox/observer"
	"coderunner/internal/judge/sandbox/runner"
	"coderunner/internal/judge/sandbox/workspace"
	"coderunner/internal/judge/service"
	"coderunner/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const preloadTimeout = 10 * time.Minute

// Runtime is an assembled execution engine plus the resources it owns.
type Runtime struct {
	Service *service.Service
	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Service

	closers []func() error
}

// Options tweaks what Build assembles.
type Options struct {
	// WithRateLimit connects the limiter store when one is configured.
	WithRateLimit bool
	Metrics       observer.MetricsRecorder
}

// Build assembles the execution engine described by cfg.
func Build(ctx context.Context, cfg *AppConfig, opts Options) (_ *Runtime, err error) {
	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	languages := sandboxconfig.NewLocalRepository(cfg.Languages)
	backend, err := rt.buildBackend(ctx, cfg, languages, opts.Metrics)
	if err != nil {
		return nil, err
	}

	rt.Service, err = service.NewService(service.Config{
		Backend:           backend,
		Languages:         languages,
		Metrics:           opts.Metrics,
		WorkerPoolSize:    cfg.Engine.WorkerPoolSize,
		QueueTimeout:      cfg.Engine.QueueTimeout,
		FanOut:            cfg.Engine.FanOut,
		EvaluationTimeout: cfg.Engine.EvaluationTimeout,
		MaxLimits:         cfg.Engine.MaxLimits(),
	})
	if err != nil {
		return nil, err
	}

	if opts.WithRateLimit && cfg.RateLimit.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&cfg.RateLimit.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis failed: %w", err)
		}
		rt.closers = append(rt.closers, redisCache.Close)
		rt.Limiter = ratelimit.NewService(redisCache, cfg.RateLimit.Limiter)
	}
	return rt, nil
}

func (rt *Runtime) buildBackend(ctx context.Context, cfg *AppConfig, languages sandboxconfig.LanguageCatalog, metrics observer.MetricsRecorder) (sandbox.Backend, error) {
	switch cfg.Engine.Backend {
	case BackendJudge0:
		client, err := judge0.NewClient(cfg.Judge0)
		if err != nil {
			return nil, err
		}
		return judge0.NewBackend(client), nil
	case BackendLocal:
		return rt.buildLocal(ctx, cfg, languages, metrics)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Engine.Backend)
}

func (rt *Runtime) buildLocal(ctx context.Context, cfg *AppConfig, languages sandboxconfig.LanguageCatalog, metrics observer.MetricsRecorder) (sandbox.Backend, error) {
	var uploader workspace.Uploader
	if cfg.Local.Workspace.Retain == workspace.RetainArchive && cfg.Archive.Enabled() {
		objStorage, err := storage.NewMinIOStorage(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, cfg.Local.Workspace.Bucket); err != nil {
			return nil, fmt.Errorf("init archive bucket failed: %w", err)
		}
		uploader = objStorage
	}
	workspaces, err := workspace.NewManager(cfg.Local.Workspace, uploader)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(cfg.Local.Engine)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, eng.Close)

	if cfg.Local.PreloadImages {
		go preloadImages(eng, languages)
	}
	return runner.NewLocalBackend(runner.DockerEngine{Engine: eng}, workspaces, metrics), nil
}

// preloadImages pulls the image of every enabled language, a few at a time.
func preloadImages(eng *engine.Engine, languages sandboxconfig.LanguageCatalog) {
	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(3)
	for _, lang := range languages.Enabled() {
		if lang.Image == "" {
			continue
		}
		g.Go(func() error {
			if err := eng.EnsureImage(ctx, lang.Image); err != nil {
				logger.Warn(ctx, "preload image failed", zap.String("language", lang.ID), zap.String("image", lang.Image), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	logger.Info(ctx, "execution images ready")
}

// Close releases everything Build acquired, in reverse order.
func (rt *Runtime) Close() error {
	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.closers = nil
	return firstErr
}
