package ledger

import (
	"time"

	"github.com/tokuotsu/kakei2grafana/record"
)

// Resolve maps a transaction on account to the day and account its money
// actually moves on. Accounts without billing rules are returned unchanged.
// Resolve is a pure function of its arguments and never fails.
func Resolve(account record.Account, date record.Date, table BillingTable) (record.Date, record.Account) {
	cfg, ok := table[account]
	if !ok {
		return date, account
	}
	return cfg.PaymentDate(date), cfg.WithdrawalAccount
}

// closingDayIn returns the closing day for the given month, resolving the
// end-of-month sentinel and clamping days the month does not have.
func (c BillingConfig) closingDayIn(year int, month time.Month) int {
	last := record.DaysIn(year, month)
	if c.ClosingDay == EndOfMonth || c.ClosingDay > last {
		return last
	}
	return c.ClosingDay
}

// ClosingDate returns the closing date of the billing cycle that contains date.
// A purchase after this month's closing day belongs to next month's cycle.
func (c BillingConfig) ClosingDate(date record.Date) record.Date {
	year, month := date.Year(), date.Month()
	closing := record.DateOf(year, month, c.closingDayIn(year, month))
	if !date.After(closing) {
		return closing
	}

	next := record.DateOf(year, month+1, 1)
	return record.DateOf(next.Year(), next.Month(), c.closingDayIn(next.Year(), next.Month()))
}

// PaymentDate returns the settlement date for a purchase made on date: the
// payment day of the month PaymentOffsetMonths after the cycle's closing month,
// clamped to that month's length and moved forward off weekends.
func (c BillingConfig) PaymentDate(date record.Date) record.Date {
	closing := c.ClosingDate(date)

	first := record.DateOf(closing.Year(), closing.Month()+time.Month(c.PaymentOffsetMonths), 1)
	day := min(c.PaymentDay, first.LastDayOfMonth())

	return nextWeekday(record.DateOf(first.Year(), first.Month(), day))
}

// nextWeekday returns d itself on weekdays and the following Monday otherwise.
// Month and year boundaries are crossed by plain day arithmetic.
func nextWeekday(d record.Date) record.Date {
	for d.IsWeekend() {
		d = d.AddDays(1)
	}
	return d
}
