package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tokuotsu/kakei2grafana/errors"
)

var (
	errCaretStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	errContextStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#808080", Dark: "#808080"})
)

// ErrorRenderer renders diagnostics with terminal styling and CSV source
// context.
type ErrorRenderer struct {
	formatter *errors.TextFormatter
}

// NewErrorRenderer creates a renderer. sources maps file names, as used in
// record positions, to their contents.
func NewErrorRenderer(sources map[string][]byte) *ErrorRenderer {
	return &ErrorRenderer{formatter: errors.NewTextFormatter(errors.WithSources(sources))}
}

// Render formats a single error. The message line is highlighted, source
// lines are dimmed and the caret marks the offending cell.
func (r *ErrorRenderer) Render(err error) string {
	lines := strings.Split(r.formatter.Format(err), "\n")

	var buf strings.Builder
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		switch {
		case i == 0:
			buf.WriteString(errorStyle.Render(line))
		case strings.HasSuffix(line, "^"):
			buf.WriteString(errContextStyle.Render(line[:len(line)-1]))
			buf.WriteString(errCaretStyle.Render("^"))
		default:
			buf.WriteString(errContextStyle.Render(line))
		}
	}
	return buf.String()
}

// RenderAll formats multiple errors, separating them with blank lines.
func (r *ErrorRenderer) RenderAll(errs []error) string {
	errs = errors.Flatten(errs)
	if len(errs) == 0 {
		return ""
	}

	var buf strings.Builder
	for i, err := range errs {
		buf.WriteString(r.Render(err))

		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}

	return buf.String()
}

// reportDiagnostics prints skipped records followed by a summary line and
// returns how many there were.
func reportDiagnostics(w io.Writer, sources map[string][]byte, errs ...[]error) int {
	var all []error
	for _, e := range errs {
		all = append(all, e...)
	}
	if len(all) == 0 {
		return 0
	}

	_, _ = fmt.Fprintln(w, NewErrorRenderer(sources).RenderAll(all))
	_, _ = fmt.Fprintln(w)
	printWarningf(w, "%d record(s) skipped", len(all))
	return len(all)
}
