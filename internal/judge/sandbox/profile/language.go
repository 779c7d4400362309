// Package profile defines how each language is built and run.
package profile

import (
	"path"
	"strings"
	"time"

	appErr "coderunner/pkg/errors"

	"github.com/google/shlex"
)

// LanguageSpec defines how to compile and run a language on every backend.
type LanguageSpec struct {
	ID             string   `yaml:"id" toml:"id"`
	Name           string   `yaml:"name" toml:"name"`
	Version        string   `yaml:"version" toml:"version"`
	SourceFile     string   `yaml:"sourceFile" toml:"source_file"`
	BinaryFile     string   `yaml:"binaryFile" toml:"binary_file"`
	CompileEnabled bool     `yaml:"compileEnabled" toml:"compile_enabled"`
	CompileCmdTpl  string   `yaml:"compileCmd" toml:"compile_cmd"`
	RunCmdTpl      string   `yaml:"runCmd" toml:"run_cmd"`
	Env            []string `yaml:"env" toml:"env"`
	// Image is the container image used by the local backend.
	Image string `yaml:"image" toml:"image"`
	// RemoteID is the Judge0 language id.
	RemoteID         int     `yaml:"remoteId" toml:"remote_id"`
	TimeMultiplier   float64 `yaml:"timeMultiplier" toml:"time_multiplier"`
	MemoryMultiplier float64 `yaml:"memoryMultiplier" toml:"memory_multiplier"`
}

// BuildCommand expands {src}, {bin} and {dir} relative to workDir and splits
// the template into argv.
func BuildCommand(tpl string, lang LanguageSpec, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidCommand).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", path.Join(workDir, lang.SourceFile))
	expanded = strings.ReplaceAll(expanded, "{dir}", workDir)
	if lang.BinaryFile != "" {
		expanded = strings.ReplaceAll(expanded, "{bin}", path.Join(workDir, lang.BinaryFile))
	}
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidCommand, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidCommand).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// ShellJoin quotes argv so that a POSIX shell reads it back unchanged.
func ShellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:+,@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Merge overlays the non-zero fields of override onto base.
func Merge(base, override LanguageSpec) LanguageSpec {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Version != "" {
		base.Version = override.Version
	}
	if override.SourceFile != "" {
		base.SourceFile = override.SourceFile
	}
	if override.BinaryFile != "" {
		base.BinaryFile = override.BinaryFile
	}
	if override.CompileCmdTpl != "" {
		base.CompileCmdTpl = override.CompileCmdTpl
		base.CompileEnabled = true
	}
	if override.CompileEnabled {
		base.CompileEnabled = true
	}
	if override.RunCmdTpl != "" {
		base.RunCmdTpl = override.RunCmdTpl
	}
	if len(override.Env) > 0 {
		base.Env = override.Env
	}
	if override.Image != "" {
		base.Image = override.Image
	}
	if override.RemoteID > 0 {
		base.RemoteID = override.RemoteID
	}
	if override.TimeMultiplier > 0 {
		base.TimeMultiplier = override.TimeMultiplier
	}
	if override.MemoryMultiplier > 0 {
		base.MemoryMultiplier = override.MemoryMultiplier
	}
	return base
}

// ScaleTime applies the language time multiplier to limit.
func (l LanguageSpec) ScaleTime(limit time.Duration) time.Duration {
	if l.TimeMultiplier <= 0 {
		return limit
	}
	return time.Duration(float64(limit) * l.TimeMultiplier)
}

// ScaleMemory applies the language memory multiplier to a limit in KB.
func (l LanguageSpec) ScaleMemory(limitKB int64) int64 {
	if l.MemoryMultiplier <= 0 {
		return limitKB
	}
	return int64(float64(limitKB) * l.MemoryMultiplier)
}
