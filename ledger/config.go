package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tokuotsu/kakei2grafana/record"
)

// EndOfMonth is the closing-day sentinel for cards that close on the last day
// of each month.
const EndOfMonth = -1

// BillingConfig describes how a credit card settles: purchases up to the closing
// day are paid PaymentOffsetMonths later on PaymentDay from WithdrawalAccount.
type BillingConfig struct {
	ClosingDay          int            `json:"closing_day"`
	PaymentOffsetMonths int            `json:"payment_offset_months"`
	PaymentDay          int            `json:"payment_day"`
	WithdrawalAccount   record.Account `json:"withdrawal_account"`
}

// Validate checks the ranges of every field.
func (c BillingConfig) Validate() error {
	if c.ClosingDay != EndOfMonth && (c.ClosingDay < 1 || c.ClosingDay > 31) {
		return fmt.Errorf("closing_day must be 1-31 or %d, got %d", EndOfMonth, c.ClosingDay)
	}
	if c.PaymentOffsetMonths < 0 {
		return fmt.Errorf("payment_offset_months must not be negative, got %d", c.PaymentOffsetMonths)
	}
	if c.PaymentDay < 1 || c.PaymentDay > 31 {
		return fmt.Errorf("payment_day must be 1-31, got %d", c.PaymentDay)
	}
	if c.WithdrawalAccount == "" {
		return fmt.Errorf("withdrawal_account is required")
	}
	return nil
}

// BillingTable maps card accounts to their billing rules. Accounts without an
// entry settle immediately on themselves. A table is never mutated after
// loading, so it is safe to share between goroutines.
type BillingTable map[record.Account]BillingConfig

// RegistryEntry names a known account and the column prefix used for it in the
// unified timeline.
type RegistryEntry struct {
	Account record.Account
	Column  string
}

// Registry is the ordered list of accounts that get timeline columns. Order is
// preserved from the configuration file and determines column order.
type Registry []RegistryEntry

// Accounts returns the account names in registry order.
func (r Registry) Accounts() []record.Account {
	accounts := make([]record.Account, len(r))
	for i, e := range r {
		accounts[i] = e.Account
	}
	return accounts
}

// Lookup returns the registry entry for an account.
func (r Registry) Lookup(account record.Account) (RegistryEntry, bool) {
	for _, e := range r {
		if e.Account == account {
			return e, true
		}
	}
	return RegistryEntry{}, false
}

var columnRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that column prefixes are usable SQL/CSV identifiers and that
// neither accounts nor columns repeat.
func (r Registry) Validate() error {
	accounts := make(map[record.Account]bool, len(r))
	columns := make(map[string]bool, len(r))
	for _, e := range r {
		if e.Account == "" {
			return fmt.Errorf("registry contains an empty account name")
		}
		if accounts[e.Account] {
			return fmt.Errorf("account %q is registered twice", e.Account)
		}
		accounts[e.Account] = true

		if !columnRegex.MatchString(e.Column) {
			return fmt.Errorf("invalid column name %q for account %q", e.Column, e.Account)
		}
		if columns[e.Column] {
			return fmt.Errorf("column %q is used by more than one account", e.Column)
		}
		columns[e.Column] = true
	}
	return nil
}

// UnmarshalJSON decodes a JSON object of account -> column while keeping the
// key order, which encoding/json maps would lose. A JSON null leaves the
// registry unchanged.
func (r *Registry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("account registry must be a JSON object")
	}

	var entries Registry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var column string
		if err := dec.Decode(&column); err != nil {
			return fmt.Errorf("column for account %q: %w", key, err)
		}
		entries = append(entries, RegistryEntry{Account: record.Account(key), Column: column})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = entries
	return nil
}

// MarshalJSON encodes the registry as an ordered JSON object.
func (r Registry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(e.Account))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Config is the immutable configuration of a reconciliation run.
type Config struct {
	Billing  BillingTable `json:"card_settings"`
	Registry Registry     `json:"accounts_ja_en"`
}

// NewConfig creates an empty configuration: no billing indirection and no
// registered accounts.
func NewConfig() *Config {
	return &Config{
		Billing: BillingTable{},
	}
}

// ParseConfig parses and validates a meta JSON document of the form:
//
//	{
//	  "card_settings": {
//	    "楽天カード": {"closing_day": -1, "payment_offset_months": 1, "payment_day": 27, "withdrawal_account": "楽天銀行"}
//	  },
//	  "accounts_ja_en": {"現金": "cash", "楽天銀行": "rakuten_bank", "楽天カード": "rakuten_card"}
//	}
func ParseConfig(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid meta config: %w", err)
	}
	if cfg.Billing == nil {
		cfg.Billing = BillingTable{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks billing rules and the registry.
func (c *Config) Validate() error {
	for account, bc := range c.Billing {
		if err := bc.Validate(); err != nil {
			return fmt.Errorf("card_settings[%q]: %w", account, err)
		}
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("accounts_ja_en: %w", err)
	}
	return nil
}
