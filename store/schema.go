package store

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tokuotsu/kakei2grafana/ledger"
)

// Source values of the transactions table.
const (
	SourceTransaction = "transaction"
	SourceTransfer    = "transfer"
)

var transactionColumns = []string{
	"date", "kind", "category", "subcategory", "amount", "delta", "place", "memo",
	"payment_method", "account", "tag", "withdrawal_date", "withdrawal_account", "source",
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + pq.QuoteIdentifier(table)
}

func createTimelineSQL(table string, registry ledger.Registry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", pq.QuoteIdentifier(table))
	sb.WriteString("  id SERIAL PRIMARY KEY,\n")
	sb.WriteString("  date DATE NOT NULL UNIQUE")
	for _, e := range registry {
		fmt.Fprintf(&sb, ",\n  %s NUMERIC NOT NULL", pq.QuoteIdentifier(e.Column+"_flow"))
		fmt.Fprintf(&sb, ",\n  %s NUMERIC", pq.QuoteIdentifier(e.Column+"_balance"))
	}
	sb.WriteString("\n)")
	return sb.String()
}

func createTransactionsSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
  id SERIAL PRIMARY KEY,
  date DATE NOT NULL,
  kind TEXT NOT NULL,
  category TEXT,
  subcategory TEXT,
  amount NUMERIC NOT NULL,
  delta NUMERIC NOT NULL,
  place TEXT,
  memo TEXT,
  payment_method TEXT,
  account TEXT NOT NULL,
  tag TEXT,
  withdrawal_date DATE NOT NULL,
  withdrawal_account TEXT NOT NULL,
  source TEXT NOT NULL
)`, pq.QuoteIdentifier(table))
}

// timelineValues returns the COPY values of one timeline row. Decimals are
// driver values; an unset balance becomes NULL.
func timelineValues(row ledger.Row) []any {
	values := make([]any, 0, 1+2*len(row.Cells))
	values = append(values, row.Date.Time)
	for _, c := range row.Cells {
		values = append(values, c.Flow, c.Balance)
	}
	return values
}

func transactionValues(r ledger.ResolvedTransaction, source string) []any {
	return []any{
		r.Date.Time,
		r.Kind.String(),
		r.Category,
		r.Subcategory,
		r.Amount,
		r.Delta(),
		r.Place,
		r.Memo,
		r.PaymentMethod,
		string(r.Account),
		r.Tag,
		r.SettlementDate.Time,
		string(r.SettlementAccount),
		source,
	}
}
