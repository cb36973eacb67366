package runtime

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/polytest/pkg/schema"
)

// LoadError aggregates the validation and compilation problems that keep
// a suite from running at all. Nothing executes when one is returned.
type LoadError struct {
	Errors []*schema.ValidationError
}

func (e *LoadError) Error() string {
	if len(e.Errors) == 1 {
		return "load suite: " + e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "load suite: %d problems:", len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(ve.Error())
	}
	return b.String()
}

// loadErrorf builds a single-problem LoadError in the compile phase.
func loadErrorf(path, format string, args ...any) *LoadError {
	return &LoadError{Errors: []*schema.ValidationError{{
		Phase:    "compile",
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}}
}

// SchedulingError reports a scheduler-level fault distinct from any
// individual run outcome, such as a shared environment whose setup
// failed.
type SchedulingError struct {
	Environment string
	Err         error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("environment %q: %v", e.Environment, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
