package web

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/record"
)

// AccountInfo describes one registered account and its latest known balance.
type AccountInfo struct {
	Name    string              `json:"name"`
	Column  string              `json:"column"`
	Balance decimal.NullDecimal `json:"balance"`
	AsOf    *record.Date        `json:"asOf,omitempty"`
}

// AccountsResponse is the JSON response structure for the accounts endpoint.
type AccountsResponse struct {
	Accounts []AccountInfo `json:"accounts"`

	// Unregistered lists accounts found in the data without a registry entry.
	Unregistered []string `json:"unregistered"`
}

// handleGetAccounts handles GET requests to /api/accounts.
// Returns the registry in column order.
func (s *Server) handleGetAccounts(w http.ResponseWriter, r *http.Request) {
	st := s.requireState(w)
	if st == nil {
		return
	}

	u := st.result.Timeline
	accounts := make([]AccountInfo, 0, len(u.Registry))
	for i, e := range u.Registry {
		info := AccountInfo{Name: string(e.Account), Column: e.Column}
		if latest, ok := u.Timelines[i].Latest(); ok {
			info.Balance = latest.Balance
			date := latest.Date
			info.AsOf = &date
		}
		accounts = append(accounts, info)
	}

	unregistered := make([]string, 0)
	for _, a := range st.result.UnregisteredAccounts() {
		unregistered = append(unregistered, string(a))
	}

	writeJSONResponse(w, &AccountsResponse{Accounts: accounts, Unregistered: unregistered})
}
