package controller

import (
	"encoding/json"
	"strings"
	"time"

	"coderunner/internal/judge/model"
)

const (
	defaultTimeLimitSeconds = 2
	defaultMemoryLimitKB    = 256000
)

// TestCaseDTO is one {input, output} pair of a problem.
type TestCaseDTO struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ProblemDTO carries the limits and test sets of a problem.
type ProblemDTO struct {
	ID          string        `json:"id,omitempty"`
	TimeLimit   float64       `json:"timeLimit"`
	MemoryLimit int64         `json:"memoryLimit"`
	Examples    []TestCaseDTO `json:"examples"`
	SampleTests []TestCaseDTO `json:"sampleTests"`
	HiddenTests []TestCaseDTO `json:"hiddenTests"`
	// TestCases holds bare inputs for /execute, either strings or {input} objects.
	TestCases []json.RawMessage `json:"testCases"`
}

// RunRequest is the body of /run, /submit and /run-all.
type RunRequest struct {
	Code     string      `json:"code"`
	Language string      `json:"language"`
	Problem  *ProblemDTO `json:"problem"`
}

// ExecuteRequest is the body of /execute.
type ExecuteRequest struct {
	Code        string      `json:"code"`
	Language    string      `json:"language"`
	Inputs      []string    `json:"inputs"`
	Problem     *ProblemDTO `json:"problem"`
	TimeLimit   float64     `json:"timeLimit"`
	MemoryLimit int64       `json:"memoryLimit"`
}

// JudgeResultDTO is the per-test evidence of a failed /run or /submit.
type JudgeResultDTO struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Output   string `json:"output"`
}

// JudgeResponse is the body of a failed /run or /submit. Result is null
// when no single test explains the failure.
type JudgeResponse struct {
	IsError   bool            `json:"isError"`
	ErrorType string          `json:"errorType,omitempty"`
	Message   string          `json:"message"`
	Result    *JudgeResultDTO `json:"result"`
}

// AcceptedResponse is the body of a passing /run or /submit.
type AcceptedResponse struct {
	IsError bool   `json:"isError"`
	Message string `json:"message"`
}

// CountResponse is the body of /run-all.
type CountResponse struct {
	Success bool `json:"success"`
	Passed  int  `json:"passed"`
	Total   int  `json:"total"`
}

// ExecuteResponse is the body of /execute.
type ExecuteResponse struct {
	Outputs []string `json:"outputs"`
}

// LanguageDTO describes one runnable language.
type LanguageDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Compiled bool   `json:"compiled"`
}

// testCases returns the samples, followed by the hidden tests when asked.
func (p *ProblemDTO) testCases(includeHidden bool) []model.TestCase {
	samples := p.Examples
	if len(samples) == 0 {
		samples = p.SampleTests
	}
	out := make([]model.TestCase, 0, len(samples)+len(p.HiddenTests))
	for _, tc := range samples {
		out = append(out, model.TestCase{Input: tc.Input, Expected: tc.Output})
	}
	if includeHidden {
		for _, tc := range p.HiddenTests {
			out = append(out, model.TestCase{Input: tc.Input, Expected: tc.Output})
		}
	}
	return out
}

func (p *ProblemDTO) limits() model.Limits {
	return limits(p.TimeLimit, p.MemoryLimit)
}

// inputs flattens TestCases, which may mix strings and {input} objects.
func (p *ProblemDTO) inputs() ([]string, bool) {
	if p == nil || p.TestCases == nil {
		return nil, false
	}
	out := make([]string, 0, len(p.TestCases))
	for _, raw := range p.TestCases {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var tc TestCaseDTO
		if err := json.Unmarshal(raw, &tc); err != nil {
			return nil, false
		}
		out = append(out, tc.Input)
	}
	return out, true
}

func limits(timeLimitSeconds float64, memoryLimitKB int64) model.Limits {
	if timeLimitSeconds <= 0 {
		timeLimitSeconds = defaultTimeLimitSeconds
	}
	if memoryLimitKB <= 0 {
		memoryLimitKB = defaultMemoryLimitKB
	}
	return model.Limits{
		TimeLimit:     time.Duration(timeLimitSeconds * float64(time.Second)),
		MemoryLimitKB: memoryLimitKB,
	}
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
