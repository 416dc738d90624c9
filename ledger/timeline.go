package ledger

import (
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"

	"github.com/tokuotsu/kakei2grafana/record"
)

// Span is an inclusive range of calendar days. The zero Span is empty.
type Span struct {
	Start record.Date
	End   record.Date
}

// NewSpan returns the span from start to end inclusive.
func NewSpan(start, end record.Date) Span {
	return Span{Start: start, End: end}
}

// IsEmpty reports whether the span contains no days.
func (s Span) IsEmpty() bool {
	return s.Start.IsZero() || s.End.IsZero() || s.End.Before(s.Start)
}

// Days returns the number of days in the span.
func (s Span) Days() int {
	if s.IsEmpty() {
		return 0
	}
	return s.Start.DaysUntil(s.End) + 1
}

// Contains reports whether d lies within the span.
func (s Span) Contains(d record.Date) bool {
	return !s.IsEmpty() && !d.Before(s.Start) && !d.After(s.End)
}

// Index returns the offset of d from the start of the span.
func (s Span) Index(d record.Date) (int, bool) {
	if !s.Contains(d) {
		return 0, false
	}
	return s.Start.DaysUntil(d), true
}

// Include returns the smallest span containing both s and d. Zero dates are
// ignored.
func (s Span) Include(d record.Date) Span {
	if d.IsZero() {
		return s
	}
	if s.IsEmpty() {
		return Span{Start: d, End: d}
	}
	if d.Before(s.Start) {
		s.Start = d
	}
	if d.After(s.End) {
		s.End = d
	}
	return s
}

// Dates returns every day of the span in order.
func (s Span) Dates() []record.Date {
	n := s.Days()
	dates := make([]record.Date, n)
	for i := range dates {
		dates[i] = s.Start.AddDays(i)
	}
	return dates
}

// SpanOf returns the span covering every dated flow and anchor.
func SpanOf(flows []FlowEvent, anchors []BalanceAnchor) Span {
	var s Span
	for _, f := range flows {
		s = s.Include(f.Date)
	}
	for _, a := range anchors {
		s = s.Include(a.Date)
	}
	return s
}

// TieBreak decides the order of a flow and an anchor dated the same day.
type TieBreak int

const (
	// AnchorsFirst applies the anchor first so same-day flows accumulate on top
	// of the observed balance.
	AnchorsFirst TieBreak = iota
	// FlowsFirst applies flows first, so a same-day anchor overrides them.
	FlowsFirst
)

// String returns the flag spelling of the tie-break.
func (t TieBreak) String() string {
	if t == FlowsFirst {
		return "flows-first"
	}
	return "anchors-first"
}

// DailyValue is one day of an account timeline. Balance is invalid (unset) on
// days before the first flow or anchor of the account.
type DailyValue struct {
	Date    record.Date
	Flow    decimal.Decimal
	Balance decimal.NullDecimal
}

// AccountTimeline is the gap-free daily series of one account.
type AccountTimeline struct {
	Account record.Account
	Span    Span
	Days    []DailyValue
}

// At returns the value for d.
func (t *AccountTimeline) At(d record.Date) (DailyValue, bool) {
	i, ok := t.Span.Index(d)
	if !ok || i >= len(t.Days) {
		return DailyValue{}, false
	}
	return t.Days[i], true
}

// Latest returns the last day that carries a balance.
func (t *AccountTimeline) Latest() (DailyValue, bool) {
	for i := len(t.Days) - 1; i >= 0; i-- {
		if t.Days[i].Balance.Valid {
			return t.Days[i], true
		}
	}
	return DailyValue{}, false
}

// IsEmpty reports whether the account has neither a balance nor a flow on any
// day of the span.
func (t *AccountTimeline) IsEmpty() bool {
	for _, d := range t.Days {
		if d.Balance.Valid || !d.Flow.IsZero() {
			return false
		}
	}
	return true
}

// foldEvent is a flow or an anchor on the combined event stream.
type foldEvent struct {
	date   record.Date
	anchor bool
	value  decimal.Decimal
}

// balancePoint is the running balance at the end of a day with events.
type balancePoint struct {
	date    record.Date
	balance decimal.Decimal
}

// Reconstruct builds the daily timeline of account over span.
//
// Flows and anchors of other accounts and events without a date are ignored.
// Events are folded in date order: an anchor sets the running balance, a flow
// adds its delta. Same-day ties are ordered by tie. The balance of a day is the
// running balance after its last event; days without events carry the previous
// balance forward and days before the first event stay unset. Events before the
// span still seed the balance at its start. Flow is the sum of the deltas
// settling on each day.
func Reconstruct(account record.Account, flows []FlowEvent, anchors []BalanceAnchor, span Span, tie TieBreak) *AccountTimeline {
	events := make([]foldEvent, 0, len(flows)+len(anchors))
	for _, f := range flows {
		if f.Account == account && !f.Date.IsZero() {
			events = append(events, foldEvent{date: f.Date, value: f.Delta})
		}
	}
	for _, a := range anchors {
		if a.Account == account && !a.Date.IsZero() {
			events = append(events, foldEvent{date: a.Date, anchor: true, value: a.Balance})
		}
	}

	slices.SortStableFunc(events, func(a, b foldEvent) int {
		if c := a.date.Compare(b.date); c != 0 {
			return c
		}
		return tieRank(a, tie) - tieRank(b, tie)
	})

	points := fold(events)

	timeline := &AccountTimeline{
		Account: account,
		Span:    span,
		Days:    make([]DailyValue, span.Days()),
	}

	var current decimal.NullDecimal
	next := 0
	for next < len(points) && points[next].date.Before(span.Start) {
		current = decimal.NewNullDecimal(points[next].balance)
		next++
	}

	for i := range timeline.Days {
		day := span.Start.AddDays(i)
		if next < len(points) && points[next].date.Equal(day) {
			current = decimal.NewNullDecimal(points[next].balance)
			next++
		}
		timeline.Days[i] = DailyValue{Date: day, Balance: current}
	}

	for _, e := range events {
		if e.anchor {
			continue
		}
		if i, ok := span.Index(e.date); ok {
			timeline.Days[i].Flow = timeline.Days[i].Flow.Add(e.value)
		}
	}

	return timeline
}

func tieRank(e foldEvent, tie TieBreak) int {
	if e.anchor == (tie == AnchorsFirst) {
		return 0
	}
	return 1
}

// fold runs the balance fold over sorted events and keeps the last running
// balance of each day.
func fold(events []foldEvent) []balancePoint {
	var points []balancePoint
	running := decimal.Zero

	for i, e := range events {
		if e.anchor {
			running = e.value
		} else {
			running = running.Add(e.value)
		}

		if i+1 < len(events) && events[i+1].date.Equal(e.date) {
			continue
		}
		points = append(points, balancePoint{date: e.date, balance: running})
	}

	return points
}
