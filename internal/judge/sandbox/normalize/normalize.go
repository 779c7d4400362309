// Package normalize canonicalizes program output before comparison.
package normalize

import (
	"strings"
	"unicode"
)

// Normalize converts CRLF line endings to LF, strips trailing whitespace from
// every line and drops trailing blank lines. It is total and idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

// Equal reports whether two outputs are equal for judging purposes.
func Equal(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}
