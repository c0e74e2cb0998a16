// File: internal/orchestrator/errors.go
package orchestrator

import (
	"fmt"

	"github.com/luminark/rudder/api/schemas"
)

// StepExecutionError reports a single step's external call failing. It is
// absorbed at the path level and drives the skipped cascade and fallback; it
// never crosses the core's boundary.
type StepExecutionError struct {
	StepIndex int
	Kind      schemas.StepKind
	Err       error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepIndex, e.Kind, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// AllPathsExhaustedError is raised when every candidate path, including the
// direct_llm fallback, failed. It is the only fatal execution condition and
// carries every attempt plus the best partial output for the caller to
// surface.
type AllPathsExhaustedError struct {
	Attempts      []schemas.ExecutionRecord
	PartialOutput string // Best-effort output from any successful step, may be empty.
}

func (e *AllPathsExhaustedError) Error() string {
	return fmt.Sprintf("all %d execution paths exhausted", len(e.Attempts))
}
