// Package model holds the caller-supplied data evaluated by the runner.
package model

import (
	"strings"
	"time"
)

// Language identifies a supported programming language.
type Language string

const (
	LanguageCPP        Language = "cpp"
	LanguageC          Language = "c"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageCSharp     Language = "csharp"
	LanguageJavaScript Language = "javascript"
	LanguageRuby       Language = "ruby"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
)

// Languages lists every language the runner knows how to describe, in display order.
var Languages = []Language{
	LanguageCPP,
	LanguagePython,
	LanguageJava,
	LanguageC,
	LanguageCSharp,
	LanguageJavaScript,
	LanguageRuby,
	LanguageGo,
	LanguageRust,
}

const (
	DefaultTimeLimit     = 2 * time.Second
	DefaultMemoryLimitKB = 256000
	DefaultPidsLimit     = 64
)

// Limits bounds one run of a submission.
type Limits struct {
	TimeLimit     time.Duration
	MemoryLimitKB int64
	PidsLimit     int64
}

// WithDefaults fills zero fields with the runner defaults.
func (l Limits) WithDefaults() Limits {
	if l.TimeLimit <= 0 {
		l.TimeLimit = DefaultTimeLimit
	}
	if l.MemoryLimitKB <= 0 {
		l.MemoryLimitKB = DefaultMemoryLimitKB
	}
	if l.PidsLimit <= 0 {
		l.PidsLimit = DefaultPidsLimit
	}
	return l
}

// Clamp caps every field at the matching field of max. Zero fields of max
// leave the field unbounded.
func (l Limits) Clamp(max Limits) Limits {
	if max.TimeLimit > 0 && l.TimeLimit > max.TimeLimit {
		l.TimeLimit = max.TimeLimit
	}
	if max.MemoryLimitKB > 0 && l.MemoryLimitKB > max.MemoryLimitKB {
		l.MemoryLimitKB = max.MemoryLimitKB
	}
	if max.PidsLimit > 0 && l.PidsLimit > max.PidsLimit {
		l.PidsLimit = max.PidsLimit
	}
	return l
}

// Submission is the immutable input of one evaluation.
type Submission struct {
	ID       string
	Language string
	Source   string
	Limits   Limits
}

// TestCase pairs a program input with its expected output.
type TestCase struct {
	Input    string
	Expected string
}

// Mode selects how the test cases of one evaluation are iterated.
type Mode string

const (
	// ModeStopOnFirstFailure returns the first non-accepted verdict.
	ModeStopOnFirstFailure Mode = "stop"
	// ModeCount runs every test case and reports how many were accepted.
	ModeCount Mode = "count"
	// ModeCollect runs every input and returns raw outputs without judging.
	ModeCollect Mode = "collect"
)

// ParseMode maps user input to a Mode.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeStopOnFirstFailure:
		return ModeStopOnFirstFailure, true
	case ModeCount:
		return ModeCount, true
	case ModeCollect:
		return ModeCollect, true
	}
	return "", false
}
