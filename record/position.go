package record

import "fmt"

// Position points at a cell of a CSV export.
type Position struct {
	Filename string
	Line     int // Line number of the record (1-indexed, header is line 1)
	Column   int // Byte column of the cell (1-indexed), 0 when the whole record is meant
}

// IsZero reports whether the position is unset, as for records built in code.
func (p Position) IsZero() bool {
	return p.Filename == "" && p.Line == 0 && p.Column == 0
}

// String returns a human-readable representation of the position.
func (p Position) String() string {
	switch {
	case p.Filename != "" && p.Column > 0:
		return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
	case p.Filename != "":
		return fmt.Sprintf("%s:%d", p.Filename, p.Line)
	case p.Column > 0:
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	default:
		return fmt.Sprintf("line %d", p.Line)
	}
}

// GoString returns a Go-syntax representation of the position.
func (p Position) GoString() string {
	return fmt.Sprintf("Position{Filename: %q, Line: %d, Column: %d}", p.Filename, p.Line, p.Column)
}
