// Package app loads the runner configuration and assembles the execution
// engine from it. Both binaries share it.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"coderunner/internal/common/cache"
	"coderunner/internal/common/http/middleware"
	"coderunner/internal/common/ratelimit"
	"coderunner/internal/common/storage"
	"coderunner/internal/judge/model"
	"coderunner/internal/judge/remote/judge0"
	sandboxconfig "coderunner/internal/judge/sandbox/config"
	"coderunner/internal/judge/sandbox/engine"
	"coderunner/internal/judge/sandbox/workspace"
	"coderunner/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendLocal  = "local"
	BackendJudge0 = "judge0"

	defaultPort            = "9000"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second

	// Judge0's own upper bounds for cpu_time_limit and memory_limit.
	defaultMaxTimeLimit     = 15 * time.Second
	defaultMaxMemoryLimitKB = 512000
)

// Environment variables that override the YAML file.
const (
	EnvJudge0APIKey = "JUDGE0_API_KEY"
	EnvJudge0URL    = "JUDGE0_API_URL"
	EnvPort         = "PORT"
	EnvBackend      = "RUNNER_BACKEND"
	EnvRateWindowMS = "RATE_LIMIT_WINDOW_MS"
	EnvRateMax      = "RATE_LIMIT_MAX_REQUESTS"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string                 `yaml:"addr"`
	ReadTimeout     time.Duration          `yaml:"readTimeout"`
	WriteTimeout    time.Duration          `yaml:"writeTimeout"`
	IdleTimeout     time.Duration          `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration          `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64                  `yaml:"maxBodyBytes"`
	CORS            *middleware.CORSConfig `yaml:"cors"`
}

// EngineConfig selects the backend and bounds the orchestrator.
type EngineConfig struct {
	Backend           string        `yaml:"backend"`
	WorkerPoolSize    int           `yaml:"workerPoolSize"`
	QueueTimeout      time.Duration `yaml:"queueTimeout"`
	FanOut            int           `yaml:"fanOut"`
	EvaluationTimeout time.Duration `yaml:"evaluationTimeout"`
	// Caller supplied limits above these are rejected by the HTTP layer and
	// capped by the engine.
	MaxTimeLimit     time.Duration `yaml:"maxTimeLimit"`
	MaxMemoryLimitKB int64         `yaml:"maxMemoryLimitKB"`
}

// MaxLimits returns the configured ceilings as engine limits.
func (c EngineConfig) MaxLimits() model.Limits {
	return model.Limits{TimeLimit: c.MaxTimeLimit, MemoryLimitKB: c.MaxMemoryLimitKB}
}

// LocalConfig holds the container backend settings.
type LocalConfig struct {
	Engine    engine.Config    `yaml:"engine"`
	Workspace workspace.Config `yaml:"workspace"`
	// PreloadImages pulls the images of enabled languages at startup.
	PreloadImages bool `yaml:"preloadImages"`
}

// RateLimitConfig enables per client limits when Redis.Addr is set.
type RateLimitConfig struct {
	Redis   cache.RedisConfig `yaml:"redis"`
	Limiter ratelimit.Config  `yaml:"limiter"`
}

// AppConfig holds runner config.
type AppConfig struct {
	Server    ServerConfig                 `yaml:"server"`
	Logger    logger.Config                `yaml:"logger"`
	Engine    EngineConfig                 `yaml:"engine"`
	Local     LocalConfig                  `yaml:"local"`
	Judge0    judge0.Config                `yaml:"judge0"`
	Languages sandboxconfig.LanguageConfig `yaml:"languages"`
	RateLimit RateLimitConfig              `yaml:"rateLimit"`
	Archive   storage.MinIOConfig          `yaml:"archive"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment. Variables
// already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// LoadAppConfig reads path (optional), applies environment overrides and
// fills defaults.
func LoadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))
	if cfg.Engine.Backend == "" {
		cfg.Engine.Backend = BackendJudge0
	}
	switch cfg.Engine.Backend {
	case BackendLocal:
	case BackendJudge0:
		if cfg.Judge0.APIKey == "" {
			return nil, fmt.Errorf("judge0 api key is required (set %s or judge0.apiKey)", EnvJudge0APIKey)
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Engine.Backend)
	}

	if cfg.Engine.MaxTimeLimit <= 0 {
		cfg.Engine.MaxTimeLimit = defaultMaxTimeLimit
	}
	if cfg.Engine.MaxMemoryLimitKB <= 0 {
		cfg.Engine.MaxMemoryLimitKB = defaultMaxMemoryLimitKB
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":" + defaultPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = middleware.DefaultMaxBodyBytes
	}
	if cfg.Server.CORS == nil {
		cors := middleware.DefaultCORSConfig()
		cfg.Server.CORS = &cors
	}
	if cfg.Local.Workspace.Bucket == "" {
		cfg.Local.Workspace.Bucket = cfg.Archive.Bucket
	}
	applyRedisDefaults(&cfg.RateLimit.Redis)
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvJudge0APIKey)); v != "" {
		cfg.Judge0.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJudge0URL)); v != "" {
		cfg.Judge0.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackend)); v != "" {
		cfg.Engine.Backend = v
	}
	// Unparsable values are ignored and the file or default applies.
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvRateWindowMS))); err == nil && ms > 0 {
		cfg.RateLimit.Limiter.Window = time.Duration(ms) * time.Millisecond
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvRateMax))); err == nil && n > 0 {
		cfg.RateLimit.Limiter.MaxRequests = n
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg.Addr == "" {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}
