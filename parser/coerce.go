package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/record"
)

// dateLayouts are tried in order. Exports write dates with either separator,
// with or without zero padding, and sometimes with a time of day.
var dateLayouts = func() []string {
	dates := []string{"2006-01-02", "2006/01/02", "2006/1/2", "2006-1-2"}
	times := []string{"", " 15:04", " 15:04:05", "T15:04:05"}

	layouts := make([]string, 0, len(dates)*len(times))
	for _, d := range dates {
		for _, t := range times {
			layouts = append(layouts, d+t)
		}
	}
	return layouts
}()

// parseDate returns the calendar day of s. Values without a zone are read as
// local times in loc; values with an explicit offset are converted into loc
// first, so an instant late in the evening UTC may fall on the next day.
func parseDate(s string, loc *time.Location) (record.Date, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return record.NewDateFromTime(t.In(loc)), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return record.NewDateFromTime(t), nil
		}
	}
	return record.Date{}, fmt.Errorf("unrecognized date %q", s)
}

var amountReplacer = strings.NewReplacer(
	",", "",
	"¥", "",
	"￥", "",
	"円", "",
	" ", "",
	"　", "",
)

// parseAmount reads an amount written with thousands separators and currency
// marks, e.g. "¥1,234" or "1,234円".
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := amountReplacer.Replace(s)
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("no digits in %q", s)
	}
	return decimal.NewFromString(cleaned)
}
