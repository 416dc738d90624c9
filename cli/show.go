package cli

import (
	"fmt"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/tokuotsu/kakei2grafana/formatter"
	"github.com/tokuotsu/kakei2grafana/output"
	"github.com/tokuotsu/kakei2grafana/record"
)

type ShowCmd struct {
	WorkspaceFlags

	Days int    `help:"Number of most recent days to show (0 shows all)." short:"n" default:"14"`
	From string `help:"First day to show (YYYY-MM-DD)."`
	To   string `help:"Last day to show (YYYY-MM-DD)."`
}

func (cmd *ShowCmd) Run(ctx *kong.Context, globals *Globals) error {
	var from, to record.Date
	var err error
	if cmd.From != "" {
		if from, err = record.NewDate(cmd.From); err != nil {
			return err
		}
	}
	if cmd.To != "" {
		if to, err = record.NewDate(cmd.To); err != nil {
			return err
		}
	}

	runCtx, reportTelemetry := startTelemetry(ctx, globals, "show "+filepath.Base(cmd.DataDir))
	defer reportTelemetry()

	ws, result, err := cmd.load(runCtx)
	if err != nil {
		printError(ctx.Stderr, err.Error())
		return NewCommandError(1)
	}

	u := result.Timeline.Window(from, to)
	if u.Len() == 0 {
		printInfof(ctx.Stdout, "No days to show")
		return nil
	}

	f := formatter.New(
		formatter.WithDays(cmd.Days),
		formatter.WithStyles(output.NewStyles(ctx.Stdout)),
	)
	if err := f.WriteTable(ctx.Stdout, u); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}

	if n := len(ws.Diagnostics) + len(result.Diagnostics); n > 0 {
		_, _ = fmt.Fprintln(ctx.Stderr)
		printWarningf(ctx.Stderr, "%d record(s) skipped; run build to see them", n)
	}
	return nil
}
