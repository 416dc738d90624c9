package record

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NewDate parses a date string in YYYY-MM-DD format.
//
// Example:
//
//	date, err := record.NewDate("2024-02-29")
func NewDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date: %s", s)
	}
	return NewDateFromTime(t), nil
}

// MustDate is like NewDate but panics on error.
// Use only in tests or with literal input.
func MustDate(s string) Date {
	d, err := NewDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TransactionOption configures optional transaction fields.
type TransactionOption func(*Transaction)

// WithMemo sets the memo.
func WithMemo(memo string) TransactionOption {
	return func(t *Transaction) {
		t.Memo = memo
	}
}

// WithCategory sets the category and subcategory.
func WithCategory(category, subcategory string) TransactionOption {
	return func(t *Transaction) {
		t.Category = category
		t.Subcategory = subcategory
	}
}

// WithPlace sets the shop or place.
func WithPlace(place string) TransactionOption {
	return func(t *Transaction) {
		t.Place = place
	}
}

// WithPaymentMethod sets the payment method label.
func WithPaymentMethod(method string) TransactionOption {
	return func(t *Transaction) {
		t.PaymentMethod = method
	}
}

// WithTag sets the free-form tag.
func WithTag(tag string) TransactionOption {
	return func(t *Transaction) {
		t.Tag = tag
	}
}

// WithPosition records where the transaction came from.
func WithPosition(pos Position) TransactionOption {
	return func(t *Transaction) {
		t.Pos = pos
	}
}

// NewTransaction creates a transaction with the required fields set.
//
// Example:
//
//	txn := record.NewTransaction(date, record.Expense, decimal.NewFromInt(1200), "楽天カード",
//	    record.WithCategory("食費", "外食"),
//	    record.WithMemo("lunch"),
//	)
func NewTransaction(date Date, kind Kind, amount decimal.Decimal, account Account, opts ...TransactionOption) Transaction {
	t := Transaction{
		Date:    date,
		Kind:    kind,
		Amount:  amount,
		Account: account,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// NewTransfer creates a transfer between two accounts.
func NewTransfer(date Date, amount decimal.Decimal, from, to Account, memo string) Transfer {
	return Transfer{
		Date:   date,
		Amount: amount,
		From:   from,
		To:     to,
		Memo:   memo,
	}
}

// NewSnapshot creates a balance snapshot.
func NewSnapshot(date Date, account Account, balance decimal.Decimal) Snapshot {
	return Snapshot{
		Date:    date,
		Account: account,
		Balance: balance,
	}
}
