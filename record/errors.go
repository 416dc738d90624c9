package record

import "fmt"

// Problem classifies why a record could not be used.
type Problem int

const (
	MalformedDate Problem = iota + 1
	MalformedAmount
	MalformedKind
	MissingField
)

// String returns the problem name used in text and JSON diagnostics.
func (p Problem) String() string {
	switch p {
	case MalformedDate:
		return "malformed date"
	case MalformedAmount:
		return "malformed amount"
	case MalformedKind:
		return "malformed kind"
	case MissingField:
		return "missing field"
	default:
		return "unknown problem"
	}
}

// FieldError reports a record that was skipped because one of its fields could
// not be coerced. It never aborts a run: callers collect it and continue.
type FieldError struct {
	Pos     Position
	Problem Problem
	Field   string // Canonical field name, e.g. "date" or "amount"
	Value   string // Raw cell content
	Err     error  // Underlying coercion error, if any
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s in %s", e.Pos, e.Problem, e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	return msg + "; record skipped"
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// GetPosition returns where the offending cell is.
func (e *FieldError) GetPosition() Position {
	return e.Pos
}

// GetProblem returns the classification of the failure.
func (e *FieldError) GetProblem() Problem {
	return e.Problem
}

// NewFieldError creates a FieldError.
func NewFieldError(pos Position, problem Problem, field, value string, err error) *FieldError {
	return &FieldError{
		Pos:     pos,
		Problem: problem,
		Field:   field,
		Value:   value,
		Err:     err,
	}
}
