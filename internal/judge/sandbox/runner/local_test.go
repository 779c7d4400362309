package runner

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"coderunner/internal/judge/model"
	"coderunner/internal/judge/sandbox/engine"
	"coderunner/internal/judge/sandbox/profile"
	"coderunner/internal/judge/sandbox/result"
	"coderunner/internal/judge/sandbox/workspace"
	appErr "coderunner/pkg/errors"
)

type execFunc func(dir, script string) engine.ExecResult

type fakeContainer struct {
	dir     string
	spec    engine.ContainerSpec
	alive   bool
	removed bool
	memory  []int64
	scripts []string
	exec    execFunc
}

func (c *fakeContainer) Alive() bool { return c.alive }

func (c *fakeContainer) Exec(ctx context.Context, req engine.ExecRequest) (engine.ExecResult, error) {
	c.scripts = append(c.scripts, req.Script)
	res := c.exec(c.dir, req.Script)
	if res.TimedOut {
		c.alive = false
	}
	return res, nil
}

func (c *fakeContainer) SetMemory(ctx context.Context, memoryKB int64) error {
	c.memory = append(c.memory, memoryKB)
	return nil
}

func (c *fakeContainer) Remove(ctx context.Context) error {
	c.removed = true
	c.alive = false
	return nil
}

type fakeEngine struct {
	cfg        engine.Config
	startErr   error
	exec       execFunc
	containers []*fakeContainer
}

func (e *fakeEngine) Config() engine.Config { return e.cfg }

func (e *fakeEngine) HostDir(workRoot, dir string) string { return dir }

func (e *fakeEngine) Start(ctx context.Context, spec engine.ContainerSpec) (Container, error) {
	if e.startErr != nil {
		return nil, e.startErr
	}
	c := &fakeContainer{dir: spec.HostDir, spec: spec, alive: true, exec: e.exec}
	e.containers = append(e.containers, c)
	return c, nil
}

func (e *fakeEngine) KillSubmission(ctx context.Context, submissionID string) error { return nil }

var inputPattern = regexp.MustCompile(`input_(\d+)\.txt`)

func runIndex(script string) int {
	m := inputPattern.FindStringSubmatch(script)
	if m == nil {
		return -1
	}
	i, _ := strconv.Atoi(m[1])
	return i
}

// sumProgram behaves like a program printing the sum of its input numbers.
func sumProgram(dir, script string) engine.ExecResult {
	i := runIndex(script)
	if i < 0 {
		return engine.ExecResult{}
	}
	data, _ := os.ReadFile(filepath.Join(dir, workspace.InputName(i)))
	sum := 0
	for _, f := range strings.Fields(string(data)) {
		n, _ := strconv.Atoi(f)
		sum += n
	}
	_ = os.WriteFile(filepath.Join(dir, workspace.OutputName(i)), []byte(strconv.Itoa(sum)+"\n"), 0o644)
	return engine.ExecResult{Elapsed: 10 * time.Millisecond}
}

func newBackend(t *testing.T, eng *fakeEngine) (*LocalBackend, *workspace.Manager) {
	t.Helper()
	if eng.cfg.WorkDir == "" {
		eng.cfg = engine.Config{
			WorkDir:         "/workspace",
			CompileTimeout:  10 * time.Second,
			CompileMemoryKB: 1024 * 1024,
			Grace:           2 * time.Second,
			OutputLimitKB:   65536,
		}
	}
	ws, err := workspace.NewManager(workspace.Config{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("workspace manager failed: %v", err)
	}
	return NewLocalBackend(eng, ws, nil), ws
}

func language(id model.Language) profile.LanguageSpec {
	for _, lang := range profile.Defaults() {
		if lang.ID == string(id) {
			return lang
		}
	}
	return profile.LanguageSpec{}
}

func python() profile.LanguageSpec { return language(model.LanguagePython) }

func cpp() profile.LanguageSpec { return language(model.LanguageCPP) }

func submission(source string) model.Submission {
	return model.Submission{ID: "sub-1", Language: "python", Source: source, Limits: model.Limits{TimeLimit: time.Second, MemoryLimitKB: 65536}}
}

func TestInterpretedRun(t *testing.T) {
	eng := &fakeEngine{exec: sumProgram}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()

	session, err := backend.Open(ctx, submission("print(sum(map(int, input().split())))"), python())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)

	compiled, err := session.Compile(ctx)
	if err != nil || !compiled.OK {
		t.Fatalf("interpreted languages compile trivially: %+v %v", compiled, err)
	}
	out, err := session.Run(ctx, 0, "1 2 3 4 5")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Termination != result.TermExited || out.ExitCode != 0 || out.Stdout != "15\n" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	c := eng.containers[0]
	if len(c.scripts) != 1 {
		t.Fatalf("expected a single exec, got %v", c.scripts)
	}
	script := c.scripts[0]
	for _, want := range []string{"ulimit -f 131072", "timeout -k 1 1 ", "< input_0.txt", "> output_0.txt", "2> error_0.txt", "> status_0.txt"} {
		if !strings.Contains(script, want) {
			t.Fatalf("script %q missing %q", script, want)
		}
	}
	if c.spec.MemoryKB != 65536 || c.spec.PidsLimit != model.DefaultPidsLimit {
		t.Fatalf("unexpected container limits %+v", c.spec)
	}
	source, err := os.ReadFile(filepath.Join(c.dir, python().SourceFile))
	if err != nil || !strings.Contains(string(source), "print") {
		t.Fatalf("source file not written: %v", err)
	}
}

func TestCompileFailure(t *testing.T) {
	eng := &fakeEngine{exec: func(dir, script string) engine.ExecResult {
		_ = os.WriteFile(filepath.Join(dir, workspace.CompileErrorName), []byte("main.cpp:1:1: error: expected ';'\n"), 0o644)
		return engine.ExecResult{ExitCode: 1}
	}}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()

	session, err := backend.Open(ctx, submission("int main( {"), cpp())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)

	compiled, err := session.Compile(ctx)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if compiled.OK || !strings.Contains(compiled.Output, "expected ';'") {
		t.Fatalf("unexpected outcome %+v", compiled)
	}
	if !strings.Contains(eng.containers[0].scripts[0], "> compile_error.txt 2>&1") {
		t.Fatalf("compile stderr must go to its artifact: %s", eng.containers[0].scripts[0])
	}
}

func TestCompileWarningsAreFatal(t *testing.T) {
	eng := &fakeEngine{exec: func(dir, script string) engine.ExecResult {
		_ = os.WriteFile(filepath.Join(dir, workspace.CompileErrorName), []byte("warning: unused variable\n"), 0o644)
		return engine.ExecResult{}
	}}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()
	session, err := backend.Open(ctx, submission("int main(){int x;}"), cpp())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)
	compiled, _ := session.Compile(ctx)
	if compiled.OK {
		t.Fatal("non-empty compile artifact must fail the build")
	}
}

func TestCompileSuccessLowersMemory(t *testing.T) {
	eng := &fakeEngine{exec: func(dir, script string) engine.ExecResult { return engine.ExecResult{} }}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()
	session, err := backend.Open(ctx, submission("int main(){}"), cpp())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)

	c := eng.containers[0]
	if c.spec.MemoryKB != 1024*1024 {
		t.Fatalf("compile should get the larger ceiling, got %d", c.spec.MemoryKB)
	}
	compiled, err := session.Compile(ctx)
	if err != nil || !compiled.OK {
		t.Fatalf("compile failed: %+v %v", compiled, err)
	}
	if len(c.memory) != 1 || c.memory[0] != 65536 {
		t.Fatalf("memory should drop to the run limit, got %v", c.memory)
	}
}

func TestCompileTimeout(t *testing.T) {
	eng := &fakeEngine{exec: func(dir, script string) engine.ExecResult {
		return engine.ExecResult{ExitCode: 124}
	}}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()
	session, err := backend.Open(ctx, submission("template recursion"), cpp())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)
	compiled, _ := session.Compile(ctx)
	if compiled.OK || compiled.Output != "Compilation timed out" {
		t.Fatalf("unexpected outcome %+v", compiled)
	}
}

func TestRunTimeoutRecreatesContainer(t *testing.T) {
	calls := 0
	eng := &fakeEngine{}
	eng.exec = func(dir, script string) engine.ExecResult {
		calls++
		if calls == 1 {
			return engine.ExecResult{TimedOut: true, ExitCode: -1, Elapsed: 3 * time.Second}
		}
		return sumProgram(dir, script)
	}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()
	session, err := backend.Open(ctx, submission("while True: pass"), python())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)

	out, err := session.Run(ctx, 0, "1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Termination != result.TermTimedOut {
		t.Fatalf("expected timed out termination, got %+v", out)
	}
	out, err = session.Run(ctx, 1, "2 3")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if out.Stdout != "5\n" {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}
	if len(eng.containers) != 2 || !eng.containers[0].removed {
		t.Fatalf("killed container must be replaced, containers=%d", len(eng.containers))
	}
}

func TestProgramCannotReachHostFilesThroughLinks(t *testing.T) {
	host := t.TempDir()
	secret := filepath.Join(host, "secret")
	victim := filepath.Join(host, "victim")
	_ = os.WriteFile(secret, []byte("HOST-SECRET\n"), 0o600)
	_ = os.WriteFile(victim, []byte("untouched"), 0o600)

	eng := &fakeEngine{}
	eng.exec = func(dir, script string) engine.ExecResult {
		if runIndex(script) == 0 {
			out := filepath.Join(dir, workspace.OutputName(0))
			_ = os.Remove(out)
			_ = os.Symlink(secret, out)
			_ = os.Symlink(victim, filepath.Join(dir, workspace.InputName(1)))
			return engine.ExecResult{}
		}
		return sumProgram(dir, script)
	}
	backend, _ := newBackend(t, eng)
	ctx := context.Background()
	session, err := backend.Open(ctx, submission("import os"), python())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)

	out, err := session.Run(ctx, 0, "1")
	if err == nil || strings.Contains(out.Stdout, "HOST-SECRET") {
		t.Fatalf("host file leaked into the outcome: %+v %v", out, err)
	}
	out, err = session.Run(ctx, 1, "attacker-controlled")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if out.Stdout != "0\n" {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}
	data, _ := os.ReadFile(victim)
	if string(data) != "untouched" {
		t.Fatalf("host file was overwritten: %q", data)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	eng := &fakeEngine{exec: sumProgram}
	backend, ws := newBackend(t, eng)
	ctx := context.Background()
	session, err := backend.Open(ctx, submission("x"), python())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := session.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !eng.containers[0].removed {
		t.Fatal("container must be removed")
	}
	entries, _ := os.ReadDir(ws.Root())
	if len(entries) != 0 {
		t.Fatalf("work root should be empty, found %d entries", len(entries))
	}
}

func TestOpenProvisionFailureReleasesWorkArea(t *testing.T) {
	eng := &fakeEngine{startErr: appErr.New(appErr.SandboxProvisionError).WithMessage("image missing")}
	backend, ws := newBackend(t, eng)
	_, err := backend.Open(context.Background(), submission("x"), python())
	if appErr.GetCode(err) != appErr.SandboxProvisionError {
		t.Fatalf("expected provision error, got %v", err)
	}
	entries, _ := os.ReadDir(ws.Root())
	if len(entries) != 0 {
		t.Fatalf("work area leaked: %d entries", len(entries))
	}
}

func TestSupports(t *testing.T) {
	backend, _ := newBackend(t, &fakeEngine{})
	if !backend.Supports(cpp()) || !backend.Supports(python()) {
		t.Fatal("default languages must be supported")
	}
	if backend.Supports(profile.LanguageSpec{ID: "cobol", RunCmdTpl: "cobc"}) {
		t.Fatal("a language without an image cannot run locally")
	}
	if backend.Concurrent() {
		t.Fatal("local runs share one container")
	}
}

func TestSeconds(t *testing.T) {
	cases := map[time.Duration]string{
		2 * time.Second:         "2",
		1500 * time.Millisecond: "1.5",
		250 * time.Millisecond:  "0.25",
		100 * time.Microsecond:  "0.001",
		0:                       "0.001",
	}
	for d, want := range cases {
		if got := seconds(d); got != want {
			t.Fatalf("seconds(%s) = %s, want %s", d, got, want)
		}
	}
}
