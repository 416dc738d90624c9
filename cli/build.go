package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/tokuotsu/kakei2grafana/formatter"
	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// Output file names written by build.
const (
	TimelineFile     = "final_balance.csv"
	TransactionsFile = "record.csv"
	TransfersFile    = "transfer.csv"
)

type BuildCmd struct {
	WorkspaceFlags

	Out     string  `help:"Directory the CSV outputs are written to." short:"o" default:"output" type:"path"`
	Places  int32   `help:"Decimal places of written amounts (-1 keeps them as they are)." default:"-1"`
	Publish bool    `help:"Replace the database tables with the results." name:"db"`
	DB      DBFlags `embed:"" prefix:"db-"`
	Yes     bool    `help:"Do not ask before replacing database tables." short:"y"`
	Strict  bool    `help:"Exit non-zero when records were skipped."`
}

func (cmd *BuildCmd) Run(ctx *kong.Context, globals *Globals) error {
	runCtx, reportTelemetry := startTelemetry(ctx, globals, "build "+filepath.Base(cmd.DataDir))
	defer reportTelemetry()

	ws, result, err := cmd.load(runCtx)
	if err != nil {
		printError(ctx.Stderr, err.Error())
		return NewCommandError(1)
	}

	if err := cmd.write(runCtx, result); err != nil {
		return err
	}
	printSuccess(ctx.Stdout, fmt.Sprintf("Wrote %d days for %d accounts to %s",
		result.Timeline.Len(), len(result.Timeline.Registry), pathStyle.Render(cmd.Out)))

	for _, account := range result.UnregisteredAccounts() {
		printWarningf(ctx.Stderr, "%s has records but is not in the account registry", account)
	}

	if cmd.Publish {
		published, err := cmd.publish(runCtx, result)
		if err != nil {
			printError(ctx.Stderr, err.Error())
			return NewCommandError(1)
		}
		if published {
			timeline, transactions := cmd.DB.TimelineTable, cmd.DB.TransactionsTable
			printSuccess(ctx.Stdout, fmt.Sprintf("Replaced tables %s and %s", timeline, transactions))
		} else {
			printInfof(ctx.Stdout, "Database left unchanged")
		}
	}

	skipped := reportDiagnostics(ctx.Stderr, ws.Sources, ws.Diagnostics, result.Diagnostics)
	if skipped > 0 && cmd.Strict {
		return NewCommandError(1)
	}
	return nil
}

func (cmd *BuildCmd) write(ctx context.Context, result *ledger.Result) error {
	timer := telemetry.StartTimer(ctx, "build.write "+cmd.Out)
	defer timer.End()

	if err := os.MkdirAll(cmd.Out, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := formatter.New(formatter.WithPlaces(cmd.Places))
	outputs := []struct {
		name  string
		write func(*os.File) error
	}{
		{TimelineFile, func(w *os.File) error { return f.WriteTimeline(ctx, w, result.Timeline) }},
		{TransactionsFile, func(w *os.File) error { return f.WriteResolved(ctx, w, result.Transactions) }},
		{TransfersFile, func(w *os.File) error { return f.WriteResolved(ctx, w, result.Transfers) }},
	}
	for _, o := range outputs {
		if err := writeFile(filepath.Join(cmd.Out, o.name), o.write); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes through a temporary file so readers never see a partial
// output.
func writeFile(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// publish replaces the database tables after confirmation. It reports
// whether anything was written.
func (cmd *BuildCmd) publish(ctx context.Context, result *ledger.Result) (bool, error) {
	if !cmd.Yes {
		confirmed, err := promptYesNo(fmt.Sprintf("Drop and recreate tables %q and %q in database %q?",
			cmd.DB.TimelineTable, cmd.DB.TransactionsTable, cmd.DB.Name))
		if err != nil {
			return false, err
		}
		if !confirmed {
			return false, nil
		}
	}

	timer := telemetry.StartTimer(ctx, "build.publish")
	defer timer.End()

	st, err := cmd.DB.open(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = st.Close() }()

	if err := st.Publish(ctx, result); err != nil {
		return false, err
	}
	return true, nil
}
