package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

type createCall struct {
	id         string
	config     *container.Config
	hostConfig *container.HostConfig
}

type execCall struct {
	containerID string
	config      types.ExecConfig
}

// execBehavior decides how a fake exec ends. A nil result keeps it running.
type execBehavior func(script string) *int

type fakeDockerClient struct {
	mu        sync.Mutex
	nextID    int
	images    map[string]bool
	pulls     []string
	creates   []createCall
	updates   map[string][]container.UpdateConfig
	kills     []string
	removes   []string
	execs     map[string]execCall
	behavior  execBehavior
	createErr error
	startErr  error
	closed    bool
}

func newFakeDockerClient() *fakeDockerClient {
	return &fakeDockerClient{
		images:  make(map[string]bool),
		updates: make(map[string][]container.UpdateConfig),
		execs:   make(map[string]execCall),
		behavior: func(string) *int {
			code := 0
			return &code
		},
	}
}

func exitWith(code int) execBehavior {
	return func(string) *int { return &code }
}

func (f *fakeDockerClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	f.pulls = append(f.pulls, ref)
	f.images[ref] = true
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader([]byte(`{"status":"done"}`))), nil
}

func (f *fakeDockerClient) ImageInspectWithRaw(ctx context.Context, ref string) (types.ImageInspect, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[ref] {
		return types.ImageInspect{}, nil, errdefs.NotFound(fmt.Errorf("no such image: %s", ref))
	}
	return types.ImageInspect{ID: ref}, nil, nil
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	id := fmt.Sprintf("container-%d", f.nextID)
	f.nextID++
	f.creates = append(f.creates, createCall{id: id, config: config, hostConfig: hostConfig})
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}

func (f *fakeDockerClient) ContainerUpdate(ctx context.Context, containerID string, updateConfig container.UpdateConfig) (container.ContainerUpdateOKBody, error) {
	f.mu.Lock()
	f.updates[containerID] = append(f.updates[containerID], updateConfig)
	f.mu.Unlock()
	return container.ContainerUpdateOKBody{}, nil
}

func (f *fakeDockerClient) ContainerKill(ctx context.Context, containerID, signal string) error {
	f.mu.Lock()
	f.kills = append(f.kills, containerID)
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	f.removes = append(f.removes, containerID)
	f.mu.Unlock()
	return nil
}

func (f *fakeDockerClient) ContainerExecCreate(ctx context.Context, containerID string, config types.ExecConfig) (types.IDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("exec-%d", len(f.execs))
	f.execs[id] = execCall{containerID: containerID, config: config}
	return types.IDResponse{ID: id}, nil
}

func (f *fakeDockerClient) ContainerExecStart(ctx context.Context, execID string, config types.ExecStartCheck) error {
	if !config.Detach {
		return errors.New("exec must be detached")
	}
	return nil
}

func (f *fakeDockerClient) ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error) {
	if err := ctx.Err(); err != nil {
		return types.ContainerExecInspect{}, err
	}
	f.mu.Lock()
	call, ok := f.execs[execID]
	behavior := f.behavior
	f.mu.Unlock()
	if !ok {
		return types.ContainerExecInspect{}, errdefs.NotFound(errors.New("no such exec"))
	}
	script := ""
	if n := len(call.config.Cmd); n > 0 {
		script = call.config.Cmd[n-1]
	}
	code := behavior(script)
	if code == nil {
		return types.ContainerExecInspect{ExecID: execID, ContainerID: call.containerID, Running: true, Pid: 42}, nil
	}
	return types.ContainerExecInspect{ExecID: execID, ContainerID: call.containerID, ExitCode: *code}, nil
}

func (f *fakeDockerClient) setBehavior(b execBehavior) {
	f.mu.Lock()
	f.behavior = b
	f.mu.Unlock()
}

func (f *fakeDockerClient) scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.execs))
	for i := 0; i < len(f.execs); i++ {
		call := f.execs[fmt.Sprintf("exec-%d", i)]
		out = append(out, call.config.Cmd[len(call.config.Cmd)-1])
	}
	return out
}
