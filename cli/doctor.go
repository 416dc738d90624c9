package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/alecthomas/repr"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/parser"
)

// DoctorCmd provides doctor utilities for debugging exports and configuration.
type DoctorCmd struct {
	Records RecordsCmd `cmd:"" help:"Show the records parsed from a CSV export."`
	Config  ConfigCmd  `cmd:"" help:"Show the parsed meta configuration."`
}

// RecordsCmd dumps the records of one export.
type RecordsCmd struct {
	File     string `help:"CSV export to parse." arg:"" type:"existingfile"`
	Kind     string `help:"Kind of export." enum:"transactions,transfers,snapshots" default:"transactions"`
	Timezone string `help:"Time zone record timestamps are interpreted in." default:"${timezone}"`
}

// Run executes the records command.
func (cmd *RecordsCmd) Run(ctx *kong.Context, globals *Globals) error {
	content, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	loc, err := time.LoadLocation(cmd.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cmd.Timezone, err)
	}

	runCtx, reportTelemetry := startTelemetry(ctx, globals, "doctor.records "+cmd.File)
	defer reportTelemetry()

	p := parser.New(parser.WithFilename(cmd.File), parser.WithLocation(loc))
	r := bytes.NewReader(content)

	var records any
	var diagnostics []error
	switch cmd.Kind {
	case "transfers":
		result, err := p.ParseTransfers(runCtx, r)
		if err != nil {
			return err
		}
		records, diagnostics = result.Records, result.Diagnostics
	case "snapshots":
		result, err := p.ParseSnapshots(runCtx, r)
		if err != nil {
			return err
		}
		records, diagnostics = result.Records, result.Diagnostics
	default:
		result, err := p.ParseTransactions(runCtx, r)
		if err != nil {
			return err
		}
		records, diagnostics = result.Records, result.Diagnostics
	}

	repr.New(ctx.Stdout, repr.Indent("  "), repr.OmitEmpty(true)).Println(records)

	reportDiagnostics(ctx.Stderr, map[string][]byte{cmd.File: content}, diagnostics)
	return nil
}

// ConfigCmd dumps the meta configuration.
type ConfigCmd struct {
	File string `help:"Meta JSON file." arg:"" type:"existingfile"`
}

// Run executes the config command.
func (cmd *ConfigCmd) Run(ctx *kong.Context, globals *Globals) error {
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	cfg, err := ledger.ParseConfig(data)
	if err != nil {
		printError(ctx.Stderr, err.Error())
		return NewCommandError(1)
	}

	repr.New(ctx.Stdout, repr.Indent("  ")).Println(cfg)
	printSuccess(ctx.Stdout, fmt.Sprintf("%d billing rule(s), %d registered account(s)",
		len(cfg.Billing), len(cfg.Registry)))
	return nil
}
