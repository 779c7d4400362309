package engine

import (
	"context"
	"time"

	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"

	"github.com/docker/docker/api/types"
	"go.uber.org/zap"
)

// ExecRequest is one shell script executed in a container.
type ExecRequest struct {
	Script string
	Env    []string
	// Ceiling is the host-side wall clock bound. Zero means none.
	Ceiling time.Duration
}

// ExecResult reports how an exec ended.
type ExecResult struct {
	ExitCode int
	Elapsed  time.Duration
	// TimedOut is set when the host ceiling fired and the container was killed.
	TimedOut bool
}

// Exec runs req to completion. When the ceiling passes first the whole
// container is killed and can no longer be used.
func (c *Container) Exec(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if !c.Alive() {
		return ExecResult{}, appErr.New(appErr.SandboxExecError).WithMessage("container is not running")
	}
	cli := c.engine.cli
	resp, err := cli.ContainerExecCreate(ctx, c.ID, types.ExecConfig{
		User:       c.engine.cfg.User,
		Env:        req.Env,
		WorkingDir: c.engine.cfg.WorkDir,
		Cmd:        []string{"/bin/sh", "-c", req.Script},
	})
	if err != nil {
		return ExecResult{}, appErr.Wrapf(err, appErr.SandboxExecError, "create exec failed")
	}

	execCtx := ctx
	if req.Ceiling > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, req.Ceiling)
		defer cancel()
	}

	start := time.Now()
	if err := cli.ContainerExecStart(execCtx, resp.ID, types.ExecStartCheck{Detach: true}); err != nil {
		return ExecResult{}, appErr.Wrapf(err, appErr.SandboxExecError, "start exec failed")
	}

	ticker := time.NewTicker(c.engine.cfg.PollInterval)
	defer ticker.Stop()
	for {
		inspect, err := cli.ContainerExecInspect(execCtx, resp.ID)
		if err == nil && !inspect.Running {
			return ExecResult{ExitCode: inspect.ExitCode, Elapsed: time.Since(start)}, nil
		}
		if err != nil && execCtx.Err() == nil {
			return ExecResult{}, appErr.Wrapf(err, appErr.SandboxExecError, "inspect exec failed")
		}

		select {
		case <-execCtx.Done():
			c.kill(ctx)
			if ctx.Err() != nil {
				return ExecResult{}, appErr.Wrapf(ctx.Err(), appErr.SandboxExecError, "exec cancelled")
			}
			elapsed := time.Since(start)
			logger.Warn(ctx, "exec exceeded host ceiling, container killed",
				zap.String("container_id", c.ID),
				zap.Duration("ceiling", req.Ceiling),
				zap.Duration("elapsed", elapsed),
			)
			return ExecResult{ExitCode: -1, Elapsed: elapsed, TimedOut: true}, nil
		case <-ticker.C:
		}
	}
}
