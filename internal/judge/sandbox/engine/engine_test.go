package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	appErr "coderunner/pkg/errors"
)

func newTestEngine(cli *fakeDockerClient, cfg Config) *Engine {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	return newWithClient(cfg, cli)
}

func testSpec() ContainerSpec {
	return ContainerSpec{
		SubmissionID: "sub-1",
		Image:        "python:3.12-slim",
		HostDir:      "/srv/work/abc",
		MemoryKB:     65536,
		PidsLimit:    64,
	}
}

func TestStartConfiguresIsolation(t *testing.T) {
	cli := newFakeDockerClient()
	e := newTestEngine(cli, Config{})
	c, err := e.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(cli.creates) != 1 {
		t.Fatalf("expected one container, got %d", len(cli.creates))
	}
	call := cli.creates[0]
	host := call.hostConfig
	if host.NetworkMode != "none" || !call.config.NetworkDisabled {
		t.Fatalf("network must be disabled: %+v", host.NetworkMode)
	}
	if host.Resources.Memory != 65536*1024 || host.Resources.MemorySwap != host.Resources.Memory {
		t.Fatalf("unexpected memory limits: %d/%d", host.Resources.Memory, host.Resources.MemorySwap)
	}
	if host.Resources.PidsLimit == nil || *host.Resources.PidsLimit != 64 {
		t.Fatalf("pids limit not applied")
	}
	if host.Resources.NanoCPUs != defaultNanoCPUs {
		t.Fatalf("unexpected cpu quota %d", host.Resources.NanoCPUs)
	}
	if len(host.Binds) != 1 || host.Binds[0] != "/srv/work/abc:/workspace:rw" {
		t.Fatalf("unexpected binds %v", host.Binds)
	}
	if call.config.Labels[submissionLabel] != "sub-1" {
		t.Fatalf("submission label missing")
	}
	if e.Live() != 1 {
		t.Fatalf("expected one live container")
	}

	if err := c.Remove(context.Background()); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := c.Remove(context.Background()); err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	if len(cli.removes) != 1 || e.Live() != 0 {
		t.Fatalf("container should be removed exactly once, removes=%v", cli.removes)
	}
}

func TestEnsureImagePullsOnce(t *testing.T) {
	cli := newFakeDockerClient()
	e := newTestEngine(cli, Config{})
	for i := 0; i < 3; i++ {
		if err := e.EnsureImage(context.Background(), "gcc:13"); err != nil {
			t.Fatalf("ensure image failed: %v", err)
		}
	}
	if len(cli.pulls) != 1 {
		t.Fatalf("expected one pull, got %v", cli.pulls)
	}
}

func TestEnsureImageSkipsPresentImage(t *testing.T) {
	cli := newFakeDockerClient()
	cli.images["gcc:13"] = true
	e := newTestEngine(cli, Config{})
	if err := e.EnsureImage(context.Background(), "gcc:13"); err != nil {
		t.Fatalf("ensure image failed: %v", err)
	}
	if len(cli.pulls) != 0 {
		t.Fatalf("present image must not be pulled")
	}
}

func TestStartWithoutImageIsProvisionError(t *testing.T) {
	cli := newFakeDockerClient()
	e := newTestEngine(cli, Config{PullPolicy: PullNever})
	_, err := e.Start(context.Background(), testSpec())
	if appErr.GetCode(err) != appErr.SandboxProvisionError {
		t.Fatalf("expected provision error, got %v", err)
	}
	if len(cli.creates) != 0 {
		t.Fatalf("no container may be created without an image")
	}
}

func TestExecReturnsExitCode(t *testing.T) {
	cli := newFakeDockerClient()
	cli.setBehavior(exitWith(139))
	e := newTestEngine(cli, Config{})
	c, err := e.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Remove(context.Background())

	res, err := c.Exec(context.Background(), ExecRequest{Script: "./main < input_0.txt", Ceiling: time.Second})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if res.ExitCode != 139 || res.TimedOut {
		t.Fatalf("unexpected result %+v", res)
	}
	scripts := cli.scripts()
	if len(scripts) != 1 || !strings.Contains(scripts[0], "input_0.txt") {
		t.Fatalf("unexpected scripts %v", scripts)
	}
}

func TestExecCeilingKillsContainer(t *testing.T) {
	cli := newFakeDockerClient()
	cli.setBehavior(func(string) *int { return nil })
	e := newTestEngine(cli, Config{})
	c, err := e.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Remove(context.Background())

	res, err := c.Exec(context.Background(), ExecRequest{Script: "while :; do :; done", Ceiling: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected host ceiling to fire, got %+v", res)
	}
	if c.Alive() {
		t.Fatal("container must be marked dead after a ceiling breach")
	}
	if len(cli.kills) != 1 {
		t.Fatalf("expected one kill, got %v", cli.kills)
	}
	if _, err := c.Exec(context.Background(), ExecRequest{Script: "true"}); appErr.GetCode(err) != appErr.SandboxExecError {
		t.Fatalf("exec on a dead container should fail, got %v", err)
	}
}

func TestExecCancelledByCaller(t *testing.T) {
	cli := newFakeDockerClient()
	cli.setBehavior(func(string) *int { return nil })
	e := newTestEngine(cli, Config{})
	c, err := e.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Remove(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Exec(ctx, ExecRequest{Script: "sleep 100", Ceiling: time.Minute}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestKillSubmission(t *testing.T) {
	cli := newFakeDockerClient()
	e := newTestEngine(cli, Config{})
	first, _ := e.Start(context.Background(), testSpec())
	other := testSpec()
	other.SubmissionID = "sub-2"
	second, _ := e.Start(context.Background(), other)

	if err := e.KillSubmission(context.Background(), "sub-1"); err != nil {
		t.Fatalf("kill failed: %v", err)
	}
	if first.Alive() || !second.Alive() {
		t.Fatal("only the matching submission may be killed")
	}
	if err := e.KillSubmission(context.Background(), ""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSetMemory(t *testing.T) {
	cli := newFakeDockerClient()
	e := newTestEngine(cli, Config{})
	c, _ := e.Start(context.Background(), testSpec())
	if err := c.SetMemory(context.Background(), 1024); err != nil {
		t.Fatalf("set memory failed: %v", err)
	}
	updates := cli.updates[c.ID]
	if len(updates) != 1 || updates[0].Resources.Memory != 1024*1024 || updates[0].Resources.MemorySwap != 1024*1024 {
		t.Fatalf("unexpected updates %+v", updates)
	}
}

func TestHostDir(t *testing.T) {
	e := newTestEngine(newFakeDockerClient(), Config{BindRoot: "/host/work"})
	if got := e.HostDir("/data/work", "/data/work/abc"); got != "/host/work/abc" {
		t.Fatalf("got %s", got)
	}
	if got := e.HostDir("/data/work", "/elsewhere/abc"); got != "/elsewhere/abc" {
		t.Fatalf("paths outside the root are kept, got %s", got)
	}
	plain := newTestEngine(newFakeDockerClient(), Config{})
	if got := plain.HostDir("/data/work", "/data/work/abc"); got != "/data/work/abc" {
		t.Fatalf("got %s", got)
	}
}

func TestCloseRemovesLiveContainers(t *testing.T) {
	cli := newFakeDockerClient()
	e := newTestEngine(cli, Config{})
	if _, err := e.Start(context.Background(), testSpec()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if e.Live() != 1 {
		t.Fatalf("live = %d", e.Live())
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if e.Live() != 0 || len(cli.removes) != 1 || !cli.closed {
		t.Fatalf("live=%d removes=%v closed=%v", e.Live(), cli.removes, cli.closed)
	}
}
