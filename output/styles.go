// Package output provides termenv styling for terminal output.
package output

import (
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// Styles renders terminal text. Colors degrade to plain text when the writer
// is not a terminal.
type Styles struct {
	output *termenv.Output
}

// NewStyles creates Styles for w.
func NewStyles(w io.Writer) *Styles {
	return &Styles{
		output: termenv.NewOutput(w),
	}
}

func (s *Styles) color(text, code string) termenv.Style {
	return s.output.String(text).Foreground(s.output.Color(code))
}

// Success returns text in bold green.
func (s *Styles) Success(text string) string {
	return s.color(text, "2").Bold().String()
}

// Error returns text in bold red.
func (s *Styles) Error(text string) string {
	return s.color(text, "1").Bold().String()
}

// Warning returns text in bold yellow.
func (s *Styles) Warning(text string) string {
	return s.color(text, "3").Bold().String()
}

// FilePath returns text in cyan.
func (s *Styles) FilePath(text string) string {
	return s.color(text, "6").String()
}

// Account returns text in yellow.
func (s *Styles) Account(text string) string {
	return s.color(text, "3").String()
}

// Date returns text in blue.
func (s *Styles) Date(text string) string {
	return s.color(text, "4").String()
}

// Amount colors a formatted amount by sign: red when it starts with a minus,
// green otherwise. Zero amounts stay plain.
func (s *Styles) Amount(text string) string {
	switch {
	case strings.HasPrefix(text, "-"):
		return s.color(text, "1").String()
	case strings.Trim(text, "0.,") == "":
		return text
	default:
		return s.color(text, "2").String()
	}
}

// Keyword returns text in bold.
func (s *Styles) Keyword(text string) string {
	return s.output.String(text).Bold().String()
}

// Dim returns faint text for secondary information.
func (s *Styles) Dim(text string) string {
	return s.output.String(text).Faint().String()
}

// Output returns the underlying termenv output.
func (s *Styles) Output() *termenv.Output {
	return s.output
}
