// Package loader reads a data directory into a reconciliation workspace: the
// meta configuration plus the transaction, transfer and balance exports.
//
// Missing CSV files are treated as empty so a workspace can be rebuilt while
// uploads are still arriving; the meta file is required.
//
// Example usage:
//
//	ldr := loader.New(loader.WithMetaPath("meta.json"))
//	ws, err := ldr.Load(ctx, "data")
//	if err != nil {
//	    return err
//	}
//	result, err := ledger.New(ws.Config).Reconcile(ctx, ws.Batch)
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/parser"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// Default file names inside a data directory.
const (
	DefaultMetaFile         = "meta.json"
	DefaultTransactionsFile = "record.csv"
	DefaultTransfersFile    = "transfer.csv"
	DefaultSnapshotsFile    = "balance.csv"
)

// Loader reads workspaces. Configure it with functional options passed to New:
//
//	loader := New(WithMetaPath("/etc/kakei/meta.json"))
type Loader struct {
	// MetaPath is the meta JSON file. Relative paths are resolved against the
	// data directory; empty means DefaultMetaFile inside it.
	MetaPath string

	TransactionsFile string
	TransfersFile    string
	SnapshotsFile    string

	// Location is the time zone record dates are interpreted in.
	Location *time.Location
}

// Option configures how workspaces are loaded.
type Option func(*Loader)

// WithMetaPath sets the meta JSON file.
func WithMetaPath(path string) Option {
	return func(l *Loader) {
		l.MetaPath = path
	}
}

// WithFileNames overrides the CSV file names inside the data directory. Empty
// names keep the defaults.
func WithFileNames(transactions, transfers, snapshots string) Option {
	return func(l *Loader) {
		if transactions != "" {
			l.TransactionsFile = transactions
		}
		if transfers != "" {
			l.TransfersFile = transfers
		}
		if snapshots != "" {
			l.SnapshotsFile = snapshots
		}
	}
}

// WithLocation sets the time zone record dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(l *Loader) {
		l.Location = loc
	}
}

// New creates a Loader with the given options.
func New(opts ...Option) *Loader {
	l := &Loader{
		TransactionsFile: DefaultTransactionsFile,
		TransfersFile:    DefaultTransfersFile,
		SnapshotsFile:    DefaultSnapshotsFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Workspace is a loaded data directory.
type Workspace struct {
	// Root is the absolute data directory.
	Root string

	// MetaPath is the meta file that was read.
	MetaPath string

	Config *ledger.Config
	Batch  ledger.Batch

	// Diagnostics lists rows skipped while parsing, in file order.
	Diagnostics []error

	// Files lists the CSV files that existed and were read.
	Files []string

	// Sources holds file contents keyed by the file name used in record
	// positions, for rendering diagnostics with context.
	Sources map[string][]byte
}

// Paths returns the meta file and the three CSV paths the loader reads for
// dataDir, e.g. for watching them.
func (l *Loader) Paths(dataDir string) (meta string, csvs []string) {
	meta = l.MetaPath
	if meta == "" {
		meta = DefaultMetaFile
	}
	if !filepath.IsAbs(meta) {
		meta = filepath.Join(dataDir, meta)
	}
	return meta, []string{
		filepath.Join(dataDir, l.TransactionsFile),
		filepath.Join(dataDir, l.TransfersFile),
		filepath.Join(dataDir, l.SnapshotsFile),
	}
}

// Load reads the meta file and every export in dataDir.
func (l *Loader) Load(ctx context.Context, dataDir string) (*Workspace, error) {
	root, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", dataDir, err)
	}

	timer := telemetry.StartTimer(ctx, "loader.load "+dataDir)
	defer timer.End()
	ctx = telemetry.WithRootTimer(ctx, timer)

	metaPath, csvs := l.Paths(dataDir)

	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", metaPath, err)
	}
	cfg, err := ledger.ParseConfig(meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", metaPath, err)
	}

	ws := &Workspace{
		Root:     root,
		MetaPath: metaPath,
		Config:   cfg,
		Sources:  make(map[string][]byte),
	}

	interner := parser.NewInterner(256)
	newParser := func(filename string) *parser.Parser {
		opts := []parser.Option{parser.WithFilename(filename), parser.WithInterner(interner)}
		if l.Location != nil {
			opts = append(opts, parser.WithLocation(l.Location))
		}
		return parser.New(opts...)
	}

	if data, ok, err := l.read(ws, csvs[0]); err != nil {
		return nil, err
	} else if ok {
		result, err := newParser(csvs[0]).ParseTransactions(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		ws.Batch.Transactions = result.Records
		ws.Diagnostics = append(ws.Diagnostics, result.Diagnostics...)
	}

	if data, ok, err := l.read(ws, csvs[1]); err != nil {
		return nil, err
	} else if ok {
		result, err := newParser(csvs[1]).ParseTransfers(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		ws.Batch.Transfers = result.Records
		ws.Diagnostics = append(ws.Diagnostics, result.Diagnostics...)
	}

	if data, ok, err := l.read(ws, csvs[2]); err != nil {
		return nil, err
	} else if ok {
		result, err := newParser(csvs[2]).ParseSnapshots(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		ws.Batch.Snapshots = result.Records
		ws.Diagnostics = append(ws.Diagnostics, result.Diagnostics...)
	}

	return ws, nil
}

// read returns the contents of path, or ok == false when it does not exist.
func (l *Loader) read(ws *Workspace, path string) (data []byte, ok bool, err error) {
	data, err = os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	ws.Files = append(ws.Files, path)
	ws.Sources[path] = data
	return data, true, nil
}
