package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/tokuotsu/kakei2grafana/logger"
	"github.com/tokuotsu/kakei2grafana/metrics"
	"github.com/tokuotsu/kakei2grafana/telemetry"
	"github.com/tokuotsu/kakei2grafana/web"
)

type ServeCmd struct {
	WorkspaceFlags

	Host      string  `help:"Address to bind to." default:"127.0.0.1"`
	Port      int     `help:"Port to listen on." default:"8080"`
	ReadOnly  bool    `help:"Enable read-only mode (uploads are rejected)." short:"r"`
	Watch     bool    `help:"Rebuild when files in the data directory change." default:"true" negatable:""`
	Publish   bool    `help:"Replace the database tables after every rebuild." name:"db"`
	DB        DBFlags `embed:"" prefix:"db-"`
	LogLevel  string  `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	LogFormat string  `help:"Log format." enum:"console,json" default:"console"`

	DriveDownloadURL string `help:"Base URL webhook files are downloaded from." default:"${drive_download_url}"`
}

func (cmd *ServeCmd) Run(ctx *kong.Context, globals *Globals) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if globals.Telemetry {
		collector := telemetry.NewTimingCollector()
		runCtx = telemetry.WithCollector(runCtx, collector)

		defer func() {
			_, _ = fmt.Fprintln(ctx.Stderr)
			collector.Report(ctx.Stderr, nil)
		}()
	}

	level, err := logger.ParseLevel(cmd.LogLevel)
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(ctx.Stderr, logger.Format(cmd.LogFormat), level)
	runCtx = logger.WithContext(runCtx, log)

	ldr, err := cmd.loader()
	if err != nil {
		return err
	}

	version := Version
	if version == "" {
		version = "dev"
	}

	server := web.NewWithVersion(cmd.Port, cmd.DataDir, version)
	server.Host = cmd.Host
	server.ReadOnly = cmd.ReadOnly
	server.WatchEnabled = cmd.Watch
	server.Loader = ldr
	server.LedgerOptions = cmd.ledgerOptions()
	server.Metrics = metrics.NewCollector()
	server.DriveDownloadURL = cmd.DriveDownloadURL

	if cmd.Publish {
		st, err := cmd.DB.open(runCtx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		server.Publisher = st
	}

	printInfof(ctx.Stdout, "Starting server on %s:%d", server.Host, cmd.Port)
	printInfof(ctx.Stdout, "Serving data directory: %s", pathStyle.Render(cmd.DataDir))

	if cmd.ReadOnly {
		printInfof(ctx.Stdout, "Server running in READ-ONLY mode")
	}
	if cmd.Publish {
		printInfof(ctx.Stdout, "Publishing to tables %s and %s", cmd.DB.TimelineTable, cmd.DB.TransactionsTable)
	}

	return server.Start(runCtx)
}
