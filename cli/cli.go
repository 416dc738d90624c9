// Package cli implements the kakei2grafana commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/loader"
	"github.com/tokuotsu/kakei2grafana/output"
	"github.com/tokuotsu/kakei2grafana/parser"
	"github.com/tokuotsu/kakei2grafana/store"
	"github.com/tokuotsu/kakei2grafana/telemetry"
	"github.com/tokuotsu/kakei2grafana/web"
)

var (
	successSymbol = "✓"
	errorSymbol   = "✗"
	warningSymbol = "!"
	infoSymbol    = "→"

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D787", Dark: "#00D787"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D7AF00", Dark: "#FFD75F"})
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5FAFFF", Dark: "#5FAFFF"})
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D7D7", Dark: "#00D7D7"})
)

func printSuccess(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		successStyle.Render(successSymbol),
		message,
	)
}

func printError(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		errorStyle.Render(errorSymbol),
		errorStyle.Render(message),
	)
}

func printWarningf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		warningStyle.Render(warningSymbol),
		fmt.Sprintf(format, args...),
	)
}

func printInfof(w io.Writer, format string, args ...any) {
	formatted := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(w, "%s %s\n",
		infoStyle.Render(infoSymbol),
		formatted,
	)
}

// promptYesNo prompts the user with a yes/no question.
// Returns false by default if stdin is not a terminal.
func promptYesNo(question string) (bool, error) {
	if !isTerminal() {
		return false, nil
	}

	var confirm bool

	form := huh.NewConfirm().
		Title(question).
		WithButtonAlignment(lipgloss.Left).
		Value(&confirm)

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	return confirm, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// WorkspaceFlags locate and interpret a data directory.
type WorkspaceFlags struct {
	DataDir  string `help:"Directory holding the meta file and the CSV exports." short:"d" default:"data" type:"path"`
	Meta     string `help:"Meta JSON file, relative to the data directory unless absolute." default:"${meta_file}"`
	Timezone string `help:"Time zone record timestamps are interpreted in." default:"${timezone}"`
	TieBreak string `help:"Order of a balance snapshot and flows on the same day." enum:"anchors-first,flows-first" default:"anchors-first"`
	Workers  int    `help:"Accounts reconstructed in parallel (0 uses all CPUs)." default:"0"`
}

// Vars are the kong interpolation variables the flags refer to.
func Vars() kong.Vars {
	return kong.Vars{
		"meta_file":          loader.DefaultMetaFile,
		"timezone":           parser.DefaultLocation,
		"timeline_table":     store.DefaultTimelineTable,
		"transactions_table": store.DefaultTransactionsTable,
		"drive_download_url": web.DefaultDriveDownloadURL,
	}
}

func (f *WorkspaceFlags) loader() (*loader.Loader, error) {
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", f.Timezone, err)
	}
	return loader.New(loader.WithMetaPath(f.Meta), loader.WithLocation(loc)), nil
}

func (f *WorkspaceFlags) ledgerOptions() []ledger.Option {
	tie := ledger.AnchorsFirst
	if f.TieBreak == ledger.FlowsFirst.String() {
		tie = ledger.FlowsFirst
	}
	opts := []ledger.Option{ledger.WithTieBreak(tie)}
	if f.Workers > 0 {
		opts = append(opts, ledger.WithWorkers(f.Workers))
	}
	return opts
}

// load reads the workspace and reconciles it.
func (f *WorkspaceFlags) load(ctx context.Context) (*loader.Workspace, *ledger.Result, error) {
	ldr, err := f.loader()
	if err != nil {
		return nil, nil, err
	}
	ws, err := ldr.Load(ctx, f.DataDir)
	if err != nil {
		return nil, nil, err
	}
	result, err := ledger.New(ws.Config, f.ledgerOptions()...).Reconcile(ctx, ws.Batch)
	if err != nil {
		return nil, nil, err
	}
	return ws, result, nil
}

// DBFlags configure the Postgres database Grafana reads from.
type DBFlags struct {
	Host              string `help:"Database host." env:"DB_HOST" default:"localhost"`
	Port              int    `help:"Database port." env:"DB_PORT" default:"5432"`
	Name              string `help:"Database name." env:"DB_NAME"`
	User              string `help:"Database user." env:"DB_USER"`
	Password          string `help:"Database password." env:"DB_PASSWORD"`
	SSLMode           string `help:"Database SSL mode." env:"DB_SSLMODE" default:"disable"`
	TimelineTable     string `help:"Table receiving the daily balance timeline." default:"${timeline_table}"`
	TransactionsTable string `help:"Table receiving the resolved transactions." default:"${transactions_table}"`
}

func (f *DBFlags) open(ctx context.Context) (*store.Store, error) {
	cfg := store.Config{
		Host:     f.Host,
		Port:     f.Port,
		Name:     f.Name,
		User:     f.User,
		Password: f.Password,
		SSLMode:  f.SSLMode,
	}
	return store.Open(ctx, cfg,
		store.WithTimelineTable(f.TimelineTable),
		store.WithTransactionsTable(f.TransactionsTable),
	)
}

// startTelemetry sets up timing collection when enabled and returns the run
// context plus a function that ends the root timer and prints the report.
// The report function is safe to call more than once.
func startTelemetry(ctx *kong.Context, globals *Globals, name string) (context.Context, func()) {
	runCtx := context.Background()
	if !globals.Telemetry {
		return runCtx, func() {}
	}

	collector := telemetry.NewTimingCollector()
	runCtx = telemetry.WithCollector(runCtx, collector)
	root := collector.Start(name)
	runCtx = telemetry.WithRootTimer(runCtx, root)

	var once sync.Once
	return runCtx, func() {
		once.Do(func() {
			root.End()
			_, _ = fmt.Fprintln(ctx.Stderr)
			collector.Report(ctx.Stderr, output.NewStyles(ctx.Stderr))
		})
	}
}
