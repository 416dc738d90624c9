package cli

var (
	Version   = ""
	CommitSHA = ""
)

// Globals defines global flags available to all commands.
type Globals struct {
	Telemetry bool `help:"Show timing telemetry for operations."`
}

type Commands struct {
	Globals

	Build   BuildCmd   `cmd:"" help:"Reconcile the data directory and write the timeline and resolved records."`
	Resolve ResolveCmd `cmd:"" help:"Show when and from which account a purchase is paid."`
	Show    ShowCmd    `cmd:"" help:"Print the daily balance timeline as a table."`
	Serve   ServeCmd   `cmd:"" help:"Start the ingestion server."`
	Doctor  DoctorCmd  `cmd:"" help:"Doctor utilities for debugging exports and configuration."`
}
