package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/tokuotsu/kakei2grafana/output"
)

// slowThreshold marks stages that deserve attention in the report.
const slowThreshold = 100 * time.Millisecond

// formatTimingTree writes the tree, e.g.:
//
//	build data: 125ms
//	├─ loader.load data: 85ms
//	│  └─ parser.transactions record.csv: 45ms
//	└─ ledger.reconstruct (12 accounts, 730 days): 40ms
func formatTimingTree(w io.Writer, root *timerNode, styles *output.Styles) {
	duration := elapsed(root)
	if styles != nil {
		_, _ = fmt.Fprintf(w, "%s: %s\n", styles.Keyword(root.name), formatDuration(duration))
	} else {
		_, _ = fmt.Fprintf(w, "%s: %s\n", root.name, formatDuration(duration))
	}

	for i, child := range root.children {
		formatNode(w, child, "", i == len(root.children)-1, styles)
	}
}

func formatNode(w io.Writer, node *timerNode, prefix string, isLast bool, styles *output.Styles) {
	branch, extension := "├─ ", "│  "
	if isLast {
		branch, extension = "└─ ", "   "
	}

	duration := elapsed(node)
	timing := formatDuration(duration)

	if styles != nil {
		if duration >= slowThreshold {
			timing = styles.Warning(timing)
		} else {
			timing = styles.Dim(timing)
		}
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", styles.Dim(prefix+branch), node.name, timing)
	} else {
		_, _ = fmt.Fprintf(w, "%s%s%s: %s\n", prefix, branch, node.name, timing)
	}

	for i, child := range node.children {
		formatNode(w, child, prefix+extension, i == len(node.children)-1, styles)
	}
}

// elapsed treats timers that were never ended as still running.
func elapsed(node *timerNode) time.Duration {
	if node.end.IsZero() {
		return time.Since(node.start)
	}
	return node.end.Sub(node.start)
}

// formatDuration shows milliseconds below one second and seconds above.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
