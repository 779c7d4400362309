// Package engine runs commands inside resource-capped Docker containers.
package engine

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const submissionLabel = "coderunner.submission"

// Engine provisions one long-lived container per submission and executes
// compile and run steps in it.
type Engine struct {
	cfg   Config
	cli   dockerClient
	pulls *xsync.MapOf[string, *pullState]
	live  *xsync.MapOf[string, *Container]
}

type pullState struct {
	once sync.Once
	err  error
}

// ContainerSpec describes the execution context of one submission.
type ContainerSpec struct {
	SubmissionID string
	Image        string
	// HostDir is the work area as seen by the Docker daemon.
	HostDir   string
	MemoryKB  int64
	PidsLimit int64
	Env       []string
}

// New connects to Docker and creates an engine.
func New(cfg Config) (*Engine, error) {
	cli, err := NewDockerClient(cfg.Host)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "create docker client failed")
	}
	return newWithClient(cfg, cli), nil
}

func newWithClient(cfg Config, cli dockerClient) *Engine {
	return &Engine{
		cfg:   cfg.withDefaults(),
		cli:   cli,
		pulls: xsync.NewMapOf[string, *pullState](),
		live:  xsync.NewMapOf[string, *Container](),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// HostDir maps a work area directory under workRoot to the path the Docker
// daemon must bind.
func (e *Engine) HostDir(workRoot, dir string) string {
	if e.cfg.BindRoot == "" {
		return dir
	}
	rel, err := filepath.Rel(workRoot, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dir
	}
	return filepath.Join(e.cfg.BindRoot, rel)
}

// EnsureImage makes ref available locally according to the pull policy.
// Each image is fetched at most once per process unless the fetch fails.
func (e *Engine) EnsureImage(ctx context.Context, ref string) error {
	state, _ := e.pulls.LoadOrStore(ref, &pullState{})
	state.once.Do(func() {
		state.err = e.ensureImage(ctx, ref)
	})
	if state.err != nil {
		e.pulls.Delete(ref)
	}
	return state.err
}

func (e *Engine) ensureImage(ctx context.Context, ref string) error {
	if e.cfg.PullPolicy != PullAlways {
		_, _, err := e.cli.ImageInspectWithRaw(ctx, ref)
		if err == nil {
			return nil
		}
		if !client.IsErrNotFound(err) {
			return appErr.Wrapf(err, appErr.SandboxProvisionError, "inspect image %s failed", ref)
		}
		if e.cfg.PullPolicy == PullNever {
			return appErr.Newf(appErr.SandboxProvisionError, "image %s is not available", ref)
		}
	}

	logger.Info(ctx, "pulling execution image", zap.String("image", ref))
	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxProvisionError, "pull image %s failed", ref)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return appErr.Wrapf(err, appErr.SandboxProvisionError, "pull image %s failed", ref)
	}
	return nil
}

// Start creates and starts an idle container for one submission.
func (e *Engine) Start(ctx context.Context, spec ContainerSpec) (*Container, error) {
	if spec.Image == "" {
		return nil, appErr.New(appErr.SandboxProvisionError).WithMessage("execution image is required")
	}
	if err := e.EnsureImage(ctx, spec.Image); err != nil {
		return nil, err
	}

	pids := spec.PidsLimit
	hostConfig := &container.HostConfig{
		Binds:       []string{spec.HostDir + ":" + e.cfg.WorkDir + ":rw"},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		Tmpfs:       map[string]string{"/tmp": "rw,exec,size=64m"},
		Resources: container.Resources{
			Memory:     spec.MemoryKB * 1024,
			MemorySwap: spec.MemoryKB * 1024,
			NanoCPUs:   e.cfg.NanoCPUs,
		},
	}
	if pids > 0 {
		hostConfig.Resources.PidsLimit = &pids
	}

	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image:           spec.Image,
		Cmd:             []string{"tail", "-f", "/dev/null"},
		WorkingDir:      e.cfg.WorkDir,
		Env:             spec.Env,
		User:            e.cfg.User,
		NetworkDisabled: true,
		Labels:          map[string]string{submissionLabel: spec.SubmissionID},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxProvisionError, "create container failed")
	}

	c := &Container{ID: resp.ID, SubmissionID: spec.SubmissionID, engine: e}
	e.live.Store(resp.ID, c)
	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.Remove(context.WithoutCancel(ctx))
		return nil, appErr.Wrapf(err, appErr.SandboxProvisionError, "start container failed")
	}
	logger.Debug(ctx, "container started", zap.String("container_id", resp.ID), zap.String("image", spec.Image))
	return c, nil
}

// KillSubmission force-stops every container owned by the submission.
func (e *Engine) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	e.live.Range(func(_ string, c *Container) bool {
		if c.SubmissionID == submissionID {
			c.kill(ctx)
		}
		return true
	})
	return nil
}

// Live returns the number of containers not yet removed.
func (e *Engine) Live() int {
	return e.live.Size()
}

// Close removes containers still alive and releases the Docker client.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultKillTimeout)
	defer cancel()
	e.live.Range(func(_ string, c *Container) bool {
		_ = c.Remove(ctx)
		return true
	})
	return e.cli.Close()
}

// Container is a started execution context.
type Container struct {
	ID           string
	SubmissionID string
	engine       *Engine
	dead         atomic.Bool
}

// Alive reports whether the container can still run commands.
func (c *Container) Alive() bool {
	return !c.dead.Load()
}

// SetMemory changes the memory ceiling of a running container.
func (c *Container) SetMemory(ctx context.Context, memoryKB int64) error {
	bytes := memoryKB * 1024
	_, err := c.engine.cli.ContainerUpdate(ctx, c.ID, container.UpdateConfig{
		Resources: container.Resources{Memory: bytes, MemorySwap: bytes},
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxProvisionError, "update container memory failed")
	}
	return nil
}

// Remove deletes the container. It is safe to call more than once.
func (c *Container) Remove(ctx context.Context) error {
	if _, ok := c.engine.live.LoadAndDelete(c.ID); !ok {
		return nil
	}
	c.dead.Store(true)
	if err := c.engine.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		logger.Warn(ctx, "remove container failed", zap.String("container_id", c.ID), zap.Error(err))
		return appErr.Wrapf(err, appErr.SandboxExecError, "remove container failed")
	}
	return nil
}

func (c *Container) kill(ctx context.Context) {
	c.dead.Store(true)
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultKillTimeout)
	defer cancel()
	if err := c.engine.cli.ContainerKill(killCtx, c.ID, "SIGKILL"); err != nil && !client.IsErrNotFound(err) {
		logger.Warn(ctx, "kill container failed", zap.String("container_id", c.ID), zap.Error(err))
	}
}
