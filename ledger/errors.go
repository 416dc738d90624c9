package ledger

import (
	"fmt"

	"github.com/tokuotsu/kakei2grafana/record"
)

// Diagnostics wraps the per-record problems of a run so they can travel as a
// single error value.
type Diagnostics struct {
	Errors []error
}

// NewDiagnostics returns nil when errs is empty, so the result can be returned
// directly as an error.
func NewDiagnostics(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &Diagnostics{Errors: errs}
}

func (e *Diagnostics) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d records skipped", len(e.Errors))
}

// Unwrap returns the underlying errors for error unwrapping
func (e *Diagnostics) Unwrap() []error {
	return e.Errors
}

// CountByProblem tallies field errors by problem. Errors of other types are
// counted under the zero Problem.
func (e *Diagnostics) CountByProblem() map[record.Problem]int {
	counts := make(map[record.Problem]int)
	for _, err := range e.Errors {
		if fe, ok := err.(*record.FieldError); ok {
			counts[fe.Problem]++
		} else {
			counts[0]++
		}
	}
	return counts
}
