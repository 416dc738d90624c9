// Package errors renders reconciliation diagnostics. It separates presentation
// from the domain packages so the same diagnostics can be shown on the command
// line and returned by the web API.
//
// The package defines a Formatter interface and provides two implementations:
//   - TextFormatter: the message followed by the offending CSV lines
//   - JSONFormatter: structured JSON for APIs and web interfaces
package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/tokuotsu/kakei2grafana/record"
)

// Formatter formats errors for output in different formats.
type Formatter interface {
	// Format formats a single error.
	Format(err error) string

	// FormatAll formats multiple errors.
	FormatAll(errs []error) string
}

// positioned is implemented by errors that point into a source file.
type positioned interface {
	GetPosition() record.Position
	Error() string
}

// Flatten expands errors that wrap several errors (such as
// *ledger.Diagnostics) into their members, depth first.
func Flatten(errs []error) []error {
	var out []error
	for _, err := range errs {
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			out = append(out, Flatten(multi.Unwrap())...)
			continue
		}
		out = append(out, err)
	}
	return out
}

// TextFormatter formats errors for command-line output.
type TextFormatter struct {
	sources      map[string][]byte
	contextLines int
}

// TextFormatterOption is an option for configuring TextFormatter.
type TextFormatterOption func(*TextFormatter)

// WithSources sets file contents keyed by the file names used in positions.
// Errors pointing into a known file are shown with the surrounding lines.
func WithSources(sources map[string][]byte) TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.sources = sources
	}
}

// WithContextLines sets how many lines before the error line are shown.
func WithContextLines(n int) TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.contextLines = n
	}
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(opts ...TextFormatterOption) *TextFormatter {
	tf := &TextFormatter{contextLines: 1}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// Format formats a single error.
func (tf *TextFormatter) Format(err error) string {
	e, ok := err.(positioned)
	if !ok {
		return err.Error()
	}

	pos := e.GetPosition()
	source, ok := tf.sources[pos.Filename]
	if !ok || pos.Line < 1 {
		return e.Error()
	}
	return tf.formatWithSourceContext(pos, e.Error(), source)
}

// FormatAll formats multiple errors, separating them with blank lines.
func (tf *TextFormatter) FormatAll(errs []error) string {
	errs = Flatten(errs)
	if len(errs) == 0 {
		return ""
	}

	var buf bytes.Buffer
	for i, err := range errs {
		buf.WriteString(tf.Format(err))
		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}
	return buf.String()
}

// formatWithSourceContext writes the message followed by the source lines up
// to the error line, with a caret under the offending cell.
func (tf *TextFormatter) formatWithSourceContext(pos record.Position, message string, source []byte) string {
	var buf bytes.Buffer
	buf.WriteString(message)
	buf.WriteString("\n\n")

	lines := strings.Split(strings.TrimPrefix(string(source), "\ufeff"), "\n")
	if pos.Line > len(lines) {
		return strings.TrimRight(buf.String(), "\n")
	}

	start := max(pos.Line-1-tf.contextLines, 0)
	for i := start; i < pos.Line; i++ {
		line := strings.TrimRight(lines[i], "\r")
		fmt.Fprintf(&buf, "%5d | %s\n", i+1, line)

		if i == pos.Line-1 && pos.Column > 0 {
			// Columns count bytes; the caret has to account for double-width
			// characters before it.
			prefix := line
			if pos.Column-1 <= len(line) {
				prefix = line[:pos.Column-1]
			}
			fmt.Fprintf(&buf, "%5s | %s^\n", "", strings.Repeat(" ", runewidth.StringWidth(prefix)))
		}
	}

	return strings.TrimRight(buf.String(), "\n")
}

// JSONFormatter formats errors as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// ErrorJSON represents an error in JSON format.
type ErrorJSON struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Position *PositionJSON     `json:"position,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// PositionJSON represents a file position in JSON format.
type PositionJSON struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
}

// Format formats a single error as JSON.
func (jf *JSONFormatter) Format(err error) string {
	data, _ := json.Marshal(jf.toJSON(err))
	return string(data)
}

// FormatAll formats multiple errors as a JSON array.
func (jf *JSONFormatter) FormatAll(errs []error) string {
	data, _ := json.MarshalIndent(jf.FormatAllToSlice(errs), "", "  ")
	return string(data)
}

// FormatAllToSlice returns errors as a slice of ErrorJSON structs.
func (jf *JSONFormatter) FormatAllToSlice(errs []error) []ErrorJSON {
	errs = Flatten(errs)
	result := make([]ErrorJSON, 0, len(errs))
	for _, err := range errs {
		result = append(result, jf.toJSON(err))
	}
	return result
}

func (jf *JSONFormatter) toJSON(err error) ErrorJSON {
	errJSON := ErrorJSON{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}

	if e, ok := err.(positioned); ok {
		pos := e.GetPosition()
		errJSON.Position = &PositionJSON{
			Filename: pos.Filename,
			Line:     pos.Line,
			Column:   pos.Column,
		}
	}

	if fe, ok := err.(*record.FieldError); ok {
		errJSON.Type = "field"
		errJSON.Details = map[string]string{
			"problem": fe.Problem.String(),
			"field":   fe.Field,
		}
		if fe.Value != "" {
			errJSON.Details["value"] = fe.Value
		}
	}

	return errJSON
}
