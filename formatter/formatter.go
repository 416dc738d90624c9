// Package formatter writes reconciliation results: the unified timeline and
// resolved transactions as CSV, and a width-aligned terminal table.
package formatter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/output"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

const (
	// KeepPlaces writes amounts with exactly the digits they carry.
	KeepPlaces = -1

	// columnGap is the number of spaces between table columns.
	columnGap = 2

	// unset is shown in tables for days without a balance.
	unset = "-"
)

// ResolvedHeader is the header of WriteResolved. The first columns use the
// parser's field names so the output can be read back.
var ResolvedHeader = []string{
	"date", "kind", "category", "subcategory", "amount", "place", "memo",
	"payment_method", "account", "tag", "withdrawal_date", "withdrawal_account",
}

// Formatter writes results.
type Formatter struct {
	// Places is the number of decimal places amounts are written with, or
	// KeepPlaces.
	Places int32

	// Days limits tables to the last Days days. Zero means all days.
	Days int

	// Styles colors table output. Nil writes plain text.
	Styles *output.Styles
}

// Option is a functional option for configuring a Formatter.
type Option func(*Formatter)

// WithPlaces rounds amounts to a fixed number of decimal places.
func WithPlaces(places int32) Option {
	return func(f *Formatter) {
		f.Places = places
	}
}

// WithDays limits tables to the last n days.
func WithDays(n int) Option {
	return func(f *Formatter) {
		f.Days = n
	}
}

// WithStyles colors table output.
func WithStyles(s *output.Styles) Option {
	return func(f *Formatter) {
		f.Styles = s
	}
}

// New creates a formatter.
func New(opts ...Option) *Formatter {
	f := &Formatter{Places: KeepPlaces}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Formatter) amount(d decimal.Decimal) string {
	if f.Places == KeepPlaces {
		return d.String()
	}
	return d.StringFixed(f.Places)
}

func (f *Formatter) balance(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return f.amount(d.Decimal)
}

// WriteTimeline writes the unified timeline as CSV: a date column followed by
// a flow and a balance column per registered account. Unset balances are empty
// cells.
func (f *Formatter) WriteTimeline(ctx context.Context, w io.Writer, u *ledger.UnifiedTimeline) error {
	timer := telemetry.StartTimer(ctx, fmt.Sprintf("formatter.timeline (%d rows)", u.Len()))
	defer timer.End()

	cw := csv.NewWriter(w)
	if err := cw.Write(u.ColumnNames()); err != nil {
		return err
	}

	cells := make([]string, 0, 1+2*len(u.Registry))
	for i := 0; i < u.Len(); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row := u.Row(i)
		cells = append(cells[:0], row.Date.String())
		for _, c := range row.Cells {
			cells = append(cells, f.amount(c.Flow), f.balance(c.Balance))
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteResolved writes transactions with their settlement date and account.
func (f *Formatter) WriteResolved(ctx context.Context, w io.Writer, resolved []ledger.ResolvedTransaction) error {
	timer := telemetry.StartTimer(ctx, fmt.Sprintf("formatter.resolved (%d rows)", len(resolved)))
	defer timer.End()

	cw := csv.NewWriter(w)
	if err := cw.Write(ResolvedHeader); err != nil {
		return err
	}

	for i, r := range resolved {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		err := cw.Write([]string{
			r.Date.String(),
			r.Kind.String(),
			r.Category,
			r.Subcategory,
			f.amount(r.Amount),
			r.Place,
			r.Memo,
			r.PaymentMethod,
			string(r.Account),
			r.Tag,
			r.SettlementDate.String(),
			string(r.SettlementAccount),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTable writes the balances of the last Days days as an aligned table
// with one column per registered account. Column widths account for
// double-width characters so Japanese account names line up.
func (f *Formatter) WriteTable(w io.Writer, u *ledger.UnifiedTimeline) error {
	start := 0
	if f.Days > 0 && u.Len() > f.Days {
		start = u.Len() - f.Days
	}

	header := make([]string, 0, 1+len(u.Registry))
	header = append(header, "date")
	for _, e := range u.Registry {
		header = append(header, string(e.Account))
	}

	rows := make([][]string, 0, u.Len()-start)
	for i := start; i < u.Len(); i++ {
		row := u.Row(i)
		cells := make([]string, 0, 1+len(row.Cells))
		cells = append(cells, row.Date.String())
		for _, c := range row.Cells {
			if c.Balance.Valid {
				cells = append(cells, f.amount(c.Balance.Decimal))
			} else {
				cells = append(cells, unset)
			}
		}
		rows = append(rows, cells)
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, c := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	var sb strings.Builder
	f.writeLine(&sb, header, widths, f.headerStyle)
	for _, row := range rows {
		f.writeLine(&sb, row, widths, f.cellStyle)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// writeLine pads cells to widths: the first column left-aligned, amounts
// right-aligned. Styling is applied after padding so escape codes do not count
// towards the width.
func (f *Formatter) writeLine(sb *strings.Builder, cells []string, widths []int, style func(col int, padded, raw string) string) {
	for i, c := range cells {
		if i > 0 {
			sb.WriteString(strings.Repeat(" ", columnGap))
		}
		var padded string
		if i == 0 {
			padded = runewidth.FillRight(c, widths[i])
		} else {
			padded = runewidth.FillLeft(c, widths[i])
		}
		sb.WriteString(style(i, padded, c))
	}
	sb.WriteByte('\n')
}

func (f *Formatter) headerStyle(col int, padded, raw string) string {
	if f.Styles == nil {
		return padded
	}
	if col == 0 {
		return f.Styles.Keyword(padded)
	}
	return f.Styles.Account(padded)
}

func (f *Formatter) cellStyle(col int, padded, raw string) string {
	if f.Styles == nil {
		return padded
	}
	if col == 0 {
		return f.Styles.Date(padded)
	}
	if raw == unset {
		return f.Styles.Dim(padded)
	}
	return strings.Replace(padded, raw, f.Styles.Amount(raw), 1)
}
