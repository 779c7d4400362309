package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	commonmw "coderunner/internal/common/http/middleware"
	"coderunner/internal/judge/app"
	"coderunner/internal/judge/controller"
	"coderunner/internal/judge/sandbox/observer"
	"coderunner/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/runner.yaml"
	defaultEnvFile    = ".env"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", defaultEnvFile, "Path to .env file")
	flag.Parse()

	if err := app.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	path := *configPath
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath {
		path = ""
	}
	appCfg, err := app.LoadAppConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	rt, err := app.Build(context.Background(), appCfg, app.Options{
		WithRateLimit: true,
		Metrics:       observer.LogMetricsRecorder{},
	})
	if err != nil {
		logger.Error(context.Background(), "init execution engine failed", zap.Error(err))
		return
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn(context.Background(), "release runtime failed", zap.Error(err))
		}
	}()

	httpServer := buildHTTPServer(appCfg.Server, rt)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "code runner listening",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("backend", rt.Service.BackendName()),
			zap.Bool("rate_limit", rt.Limiter != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg app.ServerConfig, rt *app.Runtime) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware())
	router.Use(commonmw.CORSMiddleware(*cfg.CORS))
	var limiter commonmw.Limiter
	if rt.Limiter != nil {
		limiter = rt.Limiter
	}
	router.Use(commonmw.RateLimitMiddleware(limiter))
	router.Use(commonmw.BodyLimitMiddleware(cfg.MaxBodyBytes))

	controller.NewJudgeController(rt.Service).Register(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
