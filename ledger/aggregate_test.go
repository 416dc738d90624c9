package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/tokuotsu/kakei2grafana/record"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

var testRegistry = Registry{
	{Account: "Cash", Column: "cash"},
	{Account: "BankA", Column: "bank_a"},
	{Account: "Card", Column: "card"},
}

func TestAggregate(t *testing.T) {
	flows := []FlowEvent{flow("Cash", 3, "-200"), flow("BankA", 5, "50")}
	anchors := []BalanceAnchor{anchor("Cash", 1, "1000")}

	u, err := Aggregate(context.Background(), testRegistry, flows, anchors)
	assert.NoError(t, err)

	assert.Equal(t, 5, u.Len())
	assert.Equal(t, "2024-01-01", u.Span.Start.String())
	assert.Equal(t, "2024-01-05", u.Span.End.String())

	assert.Equal(t, 3, len(u.Timelines))
	assert.Equal(t, []string{"1000", "1000", "800", "800", "800"}, balances(u.Timelines[0]))
	assert.Equal(t, []string{"-", "-", "-", "-", "50"}, balances(u.Timelines[1]))
	assert.Equal(t, []string{"-", "-", "-", "-", "-"}, balances(u.Timelines[2]))

	for i, tl := range u.Timelines {
		assert.Equal(t, testRegistry[i].Account, tl.Account)
		assert.Equal(t, u.Len(), len(tl.Days))
	}
}

func TestAggregateRows(t *testing.T) {
	u, err := Aggregate(context.Background(), testRegistry,
		[]FlowEvent{flow("Card", 2, "-10")},
		[]BalanceAnchor{anchor("Cash", 1, "1")})
	assert.NoError(t, err)

	rows := u.Rows()
	assert.Equal(t, 2, len(rows))
	assert.Equal(t, "2024-01-02", rows[1].Date.String())
	assert.Equal(t, 3, len(rows[1].Cells))
	assert.Equal(t, "1", rows[1].Cells[0].Balance.Decimal.String())
	assert.False(t, rows[1].Cells[1].Balance.Valid)
	assert.Equal(t, "-10", rows[1].Cells[2].Flow.String())
}

func TestAggregateColumnNames(t *testing.T) {
	u, err := Aggregate(context.Background(), testRegistry, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{
		"date",
		"cash_flow", "cash_balance",
		"bank_a_flow", "bank_a_balance",
		"card_flow", "card_balance",
	}, u.ColumnNames())
	assert.Equal(t, 0, u.Len())
}

func TestAggregateIgnoresUnregisteredAccounts(t *testing.T) {
	u, err := Aggregate(context.Background(), testRegistry[:1],
		[]FlowEvent{flow("Cash", 2, "1"), flow("Unknown", 7, "1")}, nil)
	assert.NoError(t, err)

	// The span still covers the unregistered account's events.
	assert.Equal(t, 6, u.Len())
	assert.Equal(t, 1, len(u.Timelines))
	_, ok := u.Timeline("Unknown")
	assert.False(t, ok)
}

func TestAggregateWorkerCountDoesNotChangeResult(t *testing.T) {
	var flows []FlowEvent
	for i := 1; i <= 28; i++ {
		flows = append(flows, flow("Cash", i, "1"), flow("BankA", i, "-2"), flow("Card", 29-i, "3"))
	}

	serial, err := Aggregate(context.Background(), testRegistry, flows, nil, WithWorkers(1))
	assert.NoError(t, err)
	parallel, err := Aggregate(context.Background(), testRegistry, flows, nil, WithWorkers(8))
	assert.NoError(t, err)

	for i := range testRegistry {
		assert.Equal(t, balances(serial.Timelines[i]), balances(parallel.Timelines[i]))
	}
}

func TestAggregateTieBreakOption(t *testing.T) {
	flows := []FlowEvent{flow("Cash", 1, "-50")}
	anchors := []BalanceAnchor{anchor("Cash", 1, "500")}

	u, err := Aggregate(context.Background(), testRegistry[:1], flows, anchors, WithTieBreak(FlowsFirst))
	assert.NoError(t, err)
	assert.Equal(t, []string{"500"}, balances(u.Timelines[0]))
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Aggregate(ctx, testRegistry, []FlowEvent{flow("Cash", 1, "1")}, nil)
	assert.IsError(t, err, context.Canceled)
}

func TestAggregateRecordsTiming(t *testing.T) {
	collector := telemetry.NewTimingCollector()
	ctx := telemetry.WithCollector(context.Background(), collector)

	_, err := Aggregate(ctx, testRegistry, []FlowEvent{flow("Cash", 1, "1")}, nil)
	assert.NoError(t, err)

	var buf strings.Builder
	collector.Report(&buf, nil)
	assert.Contains(t, buf.String(), "ledger.reconstruct (3 accounts, 1 days)")
}

func TestUnifiedTimelineWindow(t *testing.T) {
	u, err := Aggregate(context.Background(), testRegistry,
		[]FlowEvent{flow("Cash", 1, "10"), flow("Cash", 3, "5"), flow("Cash", 6, "1")}, nil)
	assert.NoError(t, err)

	w := u.Window(day(2), day(4))
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []string{"10", "15", "15"}, balances(w.Timelines[0]))
	assert.Equal(t, "2024-01-02", w.Row(0).Date.String())

	clamped := u.Window(record.DateOf(2023, 12, 1), record.Date{})
	assert.Equal(t, u.Len(), clamped.Len())

	empty := u.Window(day(5), day(4))
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 0, len(empty.Timelines[0].Days))
}

func TestUnifiedTimelineLookup(t *testing.T) {
	u, err := Aggregate(context.Background(), testRegistry, []FlowEvent{flow("BankA", 1, "1")}, nil)
	assert.NoError(t, err)

	tl, ok := u.Timeline("BankA")
	assert.True(t, ok)
	assert.Equal(t, record.Account("BankA"), tl.Account)
}
