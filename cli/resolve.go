package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/loader"
	"github.com/tokuotsu/kakei2grafana/record"
)

type ResolveCmd struct {
	Account string `help:"Account the purchase was made with, e.g. a card name." arg:""`
	Date    string `help:"Purchase date (YYYY-MM-DD)." arg:""`

	DataDir string `help:"Directory holding the meta file." short:"d" default:"data" type:"path"`
	Meta    string `help:"Meta JSON file, relative to the data directory unless absolute." default:"${meta_file}"`
}

func (cmd *ResolveCmd) Run(ctx *kong.Context, globals *Globals) error {
	date, err := record.NewDate(cmd.Date)
	if err != nil {
		return err
	}

	metaPath, _ := loader.New(loader.WithMetaPath(cmd.Meta)).Paths(cmd.DataDir)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("failed to read meta file: %w", err)
	}
	cfg, err := ledger.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(metaPath), err)
	}

	account := record.Account(cmd.Account)
	settled, withdrawal := ledger.Resolve(account, date, cfg.Billing)

	bc, ok := cfg.Billing[account]
	if !ok {
		printInfof(ctx.Stdout, "%s has no billing rule; money moves on %s", account, settled)
		return nil
	}

	printInfof(ctx.Stdout, "Billing cycle closes %s", bc.ClosingDate(date))
	printSuccess(ctx.Stdout, fmt.Sprintf("%s %s → %s %s",
		date, account, settled, pathStyle.Render(string(withdrawal))))
	return nil
}
