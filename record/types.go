// Package record defines the input records of a household account book export:
// income/expense transactions, transfers between accounts and balance snapshots.
//
// Records are plain values. Amounts use decimal arithmetic and dates are calendar
// days without a time component, so two records on the same day always compare
// equal regardless of the wall-clock time they were entered at.
package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical textual form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day. The embedded time is always midnight UTC so that day
// arithmetic never crosses a DST transition.
type Date struct {
	time.Time
}

// DateOf returns the date for the given year, month and day. Out of range values
// are normalized the same way time.Date normalizes them.
func DateOf(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// NewDateFromTime returns the calendar day of t in t's own location.
func NewDateFromTime(t time.Time) Date {
	return DateOf(t.Year(), t.Month(), t.Day())
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Time.IsZero()
}

// String returns the date as YYYY-MM-DD, or an empty string for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n days later (earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// Equal reports whether d and o are the same day.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

// DaysUntil returns the number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.Time.Sub(d.Time) / (24 * time.Hour))
}

// IsWeekend reports whether the date falls on a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// LastDayOfMonth returns the number of days in the date's month.
func (d Date) LastDayOfMonth() int {
	return DaysIn(d.Year(), d.Month())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := NewDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON encodes the date as a YYYY-MM-DD string, or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a YYYY-MM-DD string or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date: %s", s)
	}
	return d.UnmarshalText([]byte(s[1 : len(s)-1]))
}

// Account identifies a bank account, wallet or credit card by the name used in
// the source export (e.g. "現金", "楽天カード").
type Account string

// String returns the account name.
func (a Account) String() string {
	return string(a)
}

// Kind distinguishes money coming into an account from money leaving it.
type Kind int

const (
	// KindUnknown is the zero value and never appears on a parsed record.
	KindUnknown Kind = iota
	Income
	Expense
)

// String returns the lower-case English name of the kind.
func (k Kind) String() string {
	switch k {
	case Income:
		return "income"
	case Expense:
		return "expense"
	default:
		return "unknown"
	}
}

// Signed applies the kind's sign to a non-negative amount: income is positive,
// expense is negative. The account never influences the sign.
func (k Kind) Signed(amount decimal.Decimal) decimal.Decimal {
	if k == Expense {
		return amount.Neg()
	}
	return amount
}

// ParseKind accepts the English names and the labels used by Japanese
// household-budget exports.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "収入":
		return Income, nil
	case "expense", "支出":
		return Expense, nil
	}
	return KindUnknown, fmt.Errorf("unknown transaction kind %q", s)
}

// Transaction is a single-sided income or expense entry against one account.
type Transaction struct {
	Pos Position

	Date          Date
	Kind          Kind
	Category      string
	Subcategory   string
	Amount        decimal.Decimal
	Place         string
	Memo          string
	PaymentMethod string
	Account       Account
	Tag           string
}

// Delta returns the signed amount this transaction moves.
func (t Transaction) Delta() decimal.Decimal {
	return t.Kind.Signed(t.Amount)
}

// Transfer moves money from one account to another.
type Transfer struct {
	Pos Position

	Date   Date
	Amount decimal.Decimal
	From   Account
	To     Account
	Memo   string
}

// Snapshot is an observed account balance at a point in time.
type Snapshot struct {
	Pos Position

	Date    Date
	Account Account
	Balance decimal.Decimal
}
