package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/record"
)

// FlowEvent is a single-sided cash movement already moved to its settlement
// date and account.
type FlowEvent struct {
	Account record.Account
	Date    record.Date
	Delta   decimal.Decimal
	Kind    record.Kind
}

// BalanceAnchor is an authoritative observed balance. It replaces whatever
// balance had been accumulated from flows before it.
type BalanceAnchor struct {
	Account record.Account
	Date    record.Date
	Balance decimal.Decimal
}

// AnchorFromSnapshot converts a balance snapshot record into an anchor.
func AnchorFromSnapshot(s record.Snapshot) BalanceAnchor {
	return BalanceAnchor{
		Account: s.Account,
		Date:    s.Date,
		Balance: s.Balance,
	}
}

// ResolvedTransaction is a transaction together with its settlement date and
// settlement account.
type ResolvedTransaction struct {
	record.Transaction

	SettlementDate    record.Date
	SettlementAccount record.Account
}

// ResolveTransaction resolves a transaction against the billing table.
func ResolveTransaction(txn record.Transaction, table BillingTable) ResolvedTransaction {
	date, account := Resolve(txn.Account, txn.Date, table)
	return ResolvedTransaction{
		Transaction:       txn,
		SettlementDate:    date,
		SettlementAccount: account,
	}
}

// Deferred reports whether billing rules moved the transaction.
func (r ResolvedTransaction) Deferred() bool {
	return !r.SettlementDate.Equal(r.Date) || r.SettlementAccount != r.Account
}

// FlowEvent returns the settlement-side flow of the transaction.
func (r ResolvedTransaction) FlowEvent() FlowEvent {
	return FlowEvent{
		Account: r.SettlementAccount,
		Date:    r.SettlementDate,
		Delta:   r.Delta(),
		Kind:    r.Kind,
	}
}
