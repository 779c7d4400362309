// Package workspace manages the per-execution scratch directory.
package workspace

import "fmt"

// Artifact names inside a work area.
const (
	CompileErrorName = "compile_error.txt"
)

// InputName is the stdin artifact of test i.
func InputName(i int) string { return fmt.Sprintf("input_%d.txt", i) }

// OutputName is the stdout artifact of test i.
func OutputName(i int) string { return fmt.Sprintf("output_%d.txt", i) }

// ErrorName is the stderr artifact of test i.
func ErrorName(i int) string { return fmt.Sprintf("error_%d.txt", i) }

// StatusName holds the exit status of test i.
func StatusName(i int) string { return fmt.Sprintf("status_%d.txt", i) }
