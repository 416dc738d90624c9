package main

import (
	"errors"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/alecthomas/kong"

	"github.com/tokuotsu/kakei2grafana/cli"
)

var (
	// Version contains the application version number. It's set via ldflags
	// when building.
	Version = ""

	// CommitSHA contains the SHA of the commit that this application was built
	// against. It's set via ldflags when building.
	CommitSHA = ""

	commands struct {
		Version kong.VersionFlag `help:"Show version information"`
		cli.Commands
	}
)

func main() {
	cli.Version, cli.CommitSHA = Version, CommitSHA

	vars := cli.Vars()
	vars["version"] = buildVersion()

	ctx := kong.Parse(&commands,
		vars,
		kong.Name("kakei2grafana"),
		kong.Description("Reconcile household account book exports into daily balances for Grafana."),
		kong.UsageOnError(),
		kong.Bind(&commands.Globals),
	)

	err := ctx.Run()

	var cmdErr *cli.CommandError
	if errors.As(err, &cmdErr) {
		os.Exit(cmdErr.ExitCode())
	}
	ctx.FatalIfErrorf(err)
}

func buildVersion() string {
	version := Version
	if version == "" {
		version = "dev"
	}
	if CommitSHA == "" {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, CommitSHA)
}
