package engine

import "time"

// PullPolicy controls when execution images are fetched.
type PullPolicy string

const (
	PullIfMissing PullPolicy = "missing"
	PullAlways    PullPolicy = "always"
	PullNever     PullPolicy = "never"
)

const (
	defaultWorkDir        = "/workspace"
	defaultNanoCPUs       = 1_000_000_000
	defaultCompileTimeout = 10 * time.Second
	defaultCompileMemKB   = 1024 * 1024
	defaultGrace          = 2 * time.Second
	defaultOutputLimitKB  = 64 * 1024
	defaultPollInterval   = 20 * time.Millisecond
	defaultKillTimeout    = 5 * time.Second
)

// Config controls the Docker execution engine.
type Config struct {
	// Host overrides DOCKER_HOST.
	Host string `yaml:"host"`
	// WorkDir is where the work area is mounted inside the container.
	WorkDir string `yaml:"workDir"`
	// BindRoot is the host-side path of the work root when this process
	// itself runs in a container. Empty means the work root path is used as is.
	BindRoot   string     `yaml:"bindRoot"`
	NanoCPUs   int64      `yaml:"nanoCpus"`
	PullPolicy PullPolicy `yaml:"pullPolicy"`
	// User runs commands as a non-root user when set.
	User string `yaml:"user"`

	CompileTimeout  time.Duration `yaml:"compileTimeout"`
	CompileMemoryKB int64         `yaml:"compileMemoryKB"`
	// Grace is added to the program time limit to form the host ceiling.
	Grace         time.Duration `yaml:"grace"`
	OutputLimitKB int64         `yaml:"outputLimitKB"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	// CompileWarningsFatal fails compilation when the compiler printed anything.
	CompileWarningsFatal *bool `yaml:"compileWarningsFatal"`
}

func (c Config) withDefaults() Config {
	if c.WorkDir == "" {
		c.WorkDir = defaultWorkDir
	}
	if c.NanoCPUs <= 0 {
		c.NanoCPUs = defaultNanoCPUs
	}
	if c.PullPolicy == "" {
		c.PullPolicy = PullIfMissing
	}
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = defaultCompileTimeout
	}
	if c.CompileMemoryKB <= 0 {
		c.CompileMemoryKB = defaultCompileMemKB
	}
	if c.Grace <= 0 {
		c.Grace = defaultGrace
	}
	if c.OutputLimitKB <= 0 {
		c.OutputLimitKB = defaultOutputLimitKB
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.CompileWarningsFatal == nil {
		fatal := true
		c.CompileWarningsFatal = &fatal
	}
	return c
}

// WarningsFatal reports whether any compiler output fails the build.
func (c Config) WarningsFatal() bool {
	return c.CompileWarningsFatal == nil || *c.CompileWarningsFatal
}
