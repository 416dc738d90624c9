package ledger

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tokuotsu/kakei2grafana/record"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// Option configures reconstruction and aggregation.
type Option func(*options)

type options struct {
	tieBreak TieBreak
	workers  int
}

func newOptions(opts []Option) options {
	o := options{
		tieBreak: AnchorsFirst,
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// WithTieBreak selects how same-day anchors and flows are ordered.
// The default is AnchorsFirst.
func WithTieBreak(t TieBreak) Option {
	return func(o *options) {
		o.tieBreak = t
	}
}

// WithWorkers bounds how many accounts are reconstructed concurrently.
// The default is GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// Cell is the value of one account on one day of the unified timeline.
type Cell struct {
	Flow    decimal.Decimal
	Balance decimal.NullDecimal
}

// Row is one day of the unified timeline, with cells in registry order.
type Row struct {
	Date  record.Date
	Cells []Cell
}

// UnifiedTimeline joins the timelines of all registered accounts on a shared,
// gap-free date index.
type UnifiedTimeline struct {
	Span      Span
	Registry  Registry
	Timelines []*AccountTimeline // Aligned with Registry
}

// Len returns the number of days (rows).
func (u *UnifiedTimeline) Len() int {
	return u.Span.Days()
}

// Row returns the i-th day.
func (u *UnifiedTimeline) Row(i int) Row {
	row := Row{
		Date:  u.Span.Start.AddDays(i),
		Cells: make([]Cell, len(u.Timelines)),
	}
	for j, tl := range u.Timelines {
		day := tl.Days[i]
		row.Cells[j] = Cell{Flow: day.Flow, Balance: day.Balance}
	}
	return row
}

// Rows returns every day of the timeline.
func (u *UnifiedTimeline) Rows() []Row {
	rows := make([]Row, u.Len())
	for i := range rows {
		rows[i] = u.Row(i)
	}
	return rows
}

// ColumnNames returns the header of the wide table: date followed by a flow and
// a balance column per registered account.
func (u *UnifiedTimeline) ColumnNames() []string {
	names := make([]string, 0, 1+2*len(u.Registry))
	names = append(names, "date")
	for _, e := range u.Registry {
		names = append(names, e.Column+"_flow", e.Column+"_balance")
	}
	return names
}

// Timeline returns the timeline of one account.
func (u *UnifiedTimeline) Timeline(account record.Account) (*AccountTimeline, bool) {
	for i, e := range u.Registry {
		if e.Account == account {
			return u.Timelines[i], true
		}
	}
	return nil, false
}

// Window returns the part of the timeline between from and to inclusive.
// Zero bounds default to the timeline's own bounds; the window is clamped to
// the timeline's span.
func (u *UnifiedTimeline) Window(from, to record.Date) *UnifiedTimeline {
	window := u.Span
	if !from.IsZero() && from.After(window.Start) {
		window.Start = from
	}
	if !to.IsZero() && to.Before(window.End) {
		window.End = to
	}

	out := &UnifiedTimeline{
		Span:      window,
		Registry:  u.Registry,
		Timelines: make([]*AccountTimeline, len(u.Timelines)),
	}

	lo, hi := 0, 0
	if !window.IsEmpty() {
		lo, _ = u.Span.Index(window.Start)
		hi = lo + window.Days()
	}
	for i, tl := range u.Timelines {
		out.Timelines[i] = &AccountTimeline{
			Account: tl.Account,
			Span:    window,
			Days:    tl.Days[lo:hi],
		}
	}
	return out
}

// Aggregate reconstructs every registered account over the span of all flows
// and anchors and joins the results. Accounts without events still get
// (entirely unset) timelines. Accounts are reconstructed concurrently; the
// output order is the registry order regardless of scheduling.
func Aggregate(ctx context.Context, registry Registry, flows []FlowEvent, anchors []BalanceAnchor, opts ...Option) (*UnifiedTimeline, error) {
	o := newOptions(opts)
	span := SpanOf(flows, anchors)

	timer := telemetry.StartTimer(ctx, fmt.Sprintf("ledger.reconstruct (%d accounts, %d days)", len(registry), span.Days()))
	defer timer.End()

	flowsByAccount := make(map[record.Account][]FlowEvent)
	for _, f := range flows {
		flowsByAccount[f.Account] = append(flowsByAccount[f.Account], f)
	}
	anchorsByAccount := make(map[record.Account][]BalanceAnchor)
	for _, a := range anchors {
		anchorsByAccount[a.Account] = append(anchorsByAccount[a.Account], a)
	}

	timelines := make([]*AccountTimeline, len(registry))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, entry := range registry {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			timelines[i] = Reconstruct(entry.Account, flowsByAccount[entry.Account], anchorsByAccount[entry.Account], span, o.tieBreak)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &UnifiedTimeline{
		Span:      span,
		Registry:  registry,
		Timelines: timelines,
	}, nil
}
