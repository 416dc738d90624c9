// Package ledger reconciles household account book records into per-account
// daily balance timelines.
//
// Reconciliation happens in four steps:
//   - Transfers are expanded into an expense on the source account and an
//     income on the destination account.
//   - Every transaction, including expanded transfers, is resolved through the
//     card billing rules to the day and account the money actually moves on.
//   - For each registered account, settlement-dated flows and balance anchors
//     (snapshots) are folded into a gap-free daily balance series.
//   - All account series are joined on a shared date index.
//
// Records that cannot be used are skipped and reported as diagnostics; they
// never abort a run. All amounts use decimal arithmetic.
//
// Example usage:
//
//	cfg, err := ledger.ParseConfig(metaJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := ledger.New(cfg, ledger.WithTieBreak(ledger.AnchorsFirst))
//	result, err := l.Reconcile(ctx, ledger.Batch{
//	    Transactions: txns,
//	    Transfers:    transfers,
//	    Snapshots:    snapshots,
//	})
//	if err != nil {
//	    log.Fatal(err) // only on cancellation
//	}
//	for _, d := range result.Diagnostics {
//	    fmt.Println(d)
//	}
package ledger

import (
	"context"
	"fmt"

	"github.com/tokuotsu/kakei2grafana/record"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// Batch is the complete input of one reconciliation run.
type Batch struct {
	Transactions []record.Transaction
	Transfers    []record.Transfer
	Snapshots    []record.Snapshot
}

// Result is the output of one reconciliation run.
type Result struct {
	Timeline *UnifiedTimeline

	// Transactions are the income/expense records with their settlement.
	Transactions []ResolvedTransaction

	// Transfers are the expanded legs of every transfer with their settlement.
	Transfers []ResolvedTransaction

	// Diagnostics lists records that were skipped.
	Diagnostics []error

	flows   []FlowEvent
	anchors []BalanceAnchor
}

// UnregisteredAccounts lists accounts that carry flows or anchors but have no
// registry entry, in first-seen order. Their data does not appear in the
// timeline.
func (r *Result) UnregisteredAccounts() []record.Account {
	if r.Timeline == nil {
		return nil
	}
	seen := make(map[record.Account]bool)
	for _, e := range r.Timeline.Registry {
		seen[e.Account] = true
	}

	var missing []record.Account
	add := func(a record.Account) {
		if !seen[a] {
			seen[a] = true
			missing = append(missing, a)
		}
	}
	for _, f := range r.flows {
		add(f.Account)
	}
	for _, a := range r.anchors {
		add(a.Account)
	}
	return missing
}

// Ledger runs reconciliation against a fixed configuration. A Ledger holds no
// per-run state and may be shared between goroutines.
type Ledger struct {
	config *Config
	opts   []Option
}

// New creates a ledger for cfg. A nil cfg behaves like NewConfig().
func New(cfg *Config, opts ...Option) *Ledger {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Ledger{config: cfg, opts: opts}
}

// Config returns the configuration the ledger was created with.
func (l *Ledger) Config() *Config {
	return l.config
}

// Reconcile runs the whole pipeline over batch. It returns an error only when
// ctx is cancelled; bad records end up in Result.Diagnostics.
func (l *Ledger) Reconcile(ctx context.Context, batch Batch) (*Result, error) {
	result := &Result{}

	resolveTimer := telemetry.StartTimer(ctx, fmt.Sprintf("ledger.resolve (%d transactions, %d transfers)", len(batch.Transactions), len(batch.Transfers)))
	for _, txn := range batch.Transactions {
		if err := validateTransaction(txn); err != nil {
			result.Diagnostics = append(result.Diagnostics, err)
			continue
		}
		result.Transactions = append(result.Transactions, ResolveTransaction(txn, l.config.Billing))
	}

	for _, t := range batch.Transfers {
		if err := validateTransfer(t); err != nil {
			result.Diagnostics = append(result.Diagnostics, err)
			continue
		}
		out, in := ExpandTransfer(t)
		result.Transfers = append(result.Transfers,
			ResolveTransaction(out, l.config.Billing),
			ResolveTransaction(in, l.config.Billing),
		)
	}
	resolveTimer.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.flows = make([]FlowEvent, 0, len(result.Transactions)+len(result.Transfers))
	for _, r := range result.Transfers {
		result.flows = append(result.flows, r.FlowEvent())
	}
	for _, r := range result.Transactions {
		result.flows = append(result.flows, r.FlowEvent())
	}

	for _, s := range batch.Snapshots {
		if err := validateSnapshot(s); err != nil {
			result.Diagnostics = append(result.Diagnostics, err)
			continue
		}
		result.anchors = append(result.anchors, AnchorFromSnapshot(s))
	}

	timeline, err := Aggregate(ctx, l.config.Registry, result.flows, result.anchors, l.opts...)
	if err != nil {
		return nil, err
	}
	result.Timeline = timeline

	return result, nil
}

func validateTransaction(txn record.Transaction) error {
	switch {
	case txn.Date.IsZero():
		return record.NewFieldError(txn.Pos, record.MalformedDate, "date", "", nil)
	case txn.Kind != record.Income && txn.Kind != record.Expense:
		return record.NewFieldError(txn.Pos, record.MalformedKind, "kind", txn.Kind.String(), nil)
	case txn.Account == "":
		return record.NewFieldError(txn.Pos, record.MissingField, "account", "", nil)
	}
	return nil
}

func validateTransfer(t record.Transfer) error {
	switch {
	case t.Date.IsZero():
		return record.NewFieldError(t.Pos, record.MalformedDate, "date", "", nil)
	case t.From == "":
		return record.NewFieldError(t.Pos, record.MissingField, "from", "", nil)
	case t.To == "":
		return record.NewFieldError(t.Pos, record.MissingField, "to", "", nil)
	}
	return nil
}

func validateSnapshot(s record.Snapshot) error {
	switch {
	case s.Date.IsZero():
		return record.NewFieldError(s.Pos, record.MalformedDate, "date", "", nil)
	case s.Account == "":
		return record.NewFieldError(s.Pos, record.MissingField, "account", "", nil)
	}
	return nil
}
