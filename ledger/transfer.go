package ledger

import (
	"fmt"

	"github.com/tokuotsu/kakei2grafana/record"
)

// TransferLabel is the category and payment method given to both legs of an
// expanded transfer. It matches the label household-budget exports use.
const TransferLabel = "振替"

// ExpandTransfer splits a transfer into an expense on the source account and an
// income on the destination account. Both legs share the transfer's date,
// amount and position; each must still be resolved through Resolve, so a
// transfer paid from a card account is deferred like any other card payment.
func ExpandTransfer(t record.Transfer) (out, in record.Transaction) {
	out = record.NewTransaction(t.Date, record.Expense, t.Amount, t.From,
		record.WithCategory(TransferLabel, ""),
		record.WithPaymentMethod(TransferLabel),
		record.WithMemo(transferMemo("to", t.To, t.Memo)),
		record.WithPosition(t.Pos),
	)
	in = record.NewTransaction(t.Date, record.Income, t.Amount, t.To,
		record.WithCategory(TransferLabel, ""),
		record.WithPaymentMethod(TransferLabel),
		record.WithMemo(transferMemo("from", t.From, t.Memo)),
		record.WithPosition(t.Pos),
	)
	return out, in
}

// ExpandTransfers expands every transfer, keeping each outflow directly before
// its matching inflow.
func ExpandTransfers(transfers []record.Transfer) []record.Transaction {
	txns := make([]record.Transaction, 0, 2*len(transfers))
	for _, t := range transfers {
		out, in := ExpandTransfer(t)
		txns = append(txns, out, in)
	}
	return txns
}

func transferMemo(direction string, counterpart record.Account, memo string) string {
	annotation := fmt.Sprintf("transfer %s %s", direction, counterpart)
	if memo == "" {
		return annotation
	}
	return annotation + ": " + memo
}
