package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coderunner/internal/judge/model"

	"github.com/pelletier/go-toml/v2"
)

// jobTest is one [[tests]] entry of a job file.
type jobTest struct {
	Input    string `toml:"input"`
	Expected string `toml:"expected"`
}

// job is a submission plus its tests, read from TOML.
type job struct {
	ID          string    `toml:"id"`
	Language    string    `toml:"language"`
	Source      string    `toml:"source"`
	SourceFile  string    `toml:"source_file"`
	TimeLimit   float64   `toml:"time_limit"`
	MemoryLimit int64     `toml:"memory_limit"`
	PidsLimit   int64     `toml:"pids_limit"`
	Mode        string    `toml:"mode"`
	Tests       []jobTest `toml:"tests"`
}

func loadJob(path string) (*job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file failed: %w", err)
	}
	var j job
	if err := toml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse job file failed: %w", err)
	}
	if j.Source == "" && j.SourceFile != "" {
		src := j.SourceFile
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(path), src)
		}
		code, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read source file failed: %w", err)
		}
		j.Source = string(code)
	}
	if strings.TrimSpace(j.Source) == "" {
		return nil, fmt.Errorf("job %s has no source", path)
	}
	if j.Language == "" {
		return nil, fmt.Errorf("job %s has no language", path)
	}
	return &j, nil
}

func (j *job) submission() model.Submission {
	return model.Submission{
		ID:       j.ID,
		Language: strings.ToLower(strings.TrimSpace(j.Language)),
		Source:   j.Source,
		Limits: model.Limits{
			TimeLimit:     time.Duration(j.TimeLimit * float64(time.Second)),
			MemoryLimitKB: j.MemoryLimit,
			PidsLimit:     j.PidsLimit,
		},
	}
}

func (j *job) testCases() []model.TestCase {
	out := make([]model.TestCase, len(j.Tests))
	for i, tc := range j.Tests {
		out[i] = model.TestCase{Input: tc.Input, Expected: tc.Expected}
	}
	return out
}
