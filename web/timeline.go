package web

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/errors"
	"github.com/tokuotsu/kakei2grafana/record"
)

// TimelineResponse is the JSON response structure for the timeline endpoint.
type TimelineResponse struct {
	Columns []string      `json:"columns"`
	From    *record.Date  `json:"from,omitempty"`
	To      *record.Date  `json:"to,omitempty"`
	Rows    []TimelineRow `json:"rows"`
}

// TimelineRow is one day with a cell per registered account.
type TimelineRow struct {
	Date  record.Date    `json:"date"`
	Cells []TimelineCell `json:"cells"`
}

// TimelineCell carries the net flow and the end-of-day balance, which is null
// before the account's first event.
type TimelineCell struct {
	Flow    decimal.Decimal     `json:"flow"`
	Balance decimal.NullDecimal `json:"balance"`
}

// handleGetTimeline handles GET requests to /api/timeline.
//
// Query parameters:
//   - from: First day in YYYY-MM-DD format (default: start of the timeline).
//   - to: Last day in YYYY-MM-DD format (default: end of the timeline).
//
// The window is clamped to the days the timeline covers.
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	var from, to record.Date
	if param := r.URL.Query().Get("from"); param != "" {
		d, err := record.NewDate(param)
		if err != nil {
			http.Error(w, "invalid from format (expected YYYY-MM-DD): "+param, http.StatusBadRequest)
			return
		}
		from = d
	}
	if param := r.URL.Query().Get("to"); param != "" {
		d, err := record.NewDate(param)
		if err != nil {
			http.Error(w, "invalid to format (expected YYYY-MM-DD): "+param, http.StatusBadRequest)
			return
		}
		to = d
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		http.Error(w, "from must not be after to", http.StatusBadRequest)
		return
	}

	st := s.requireState(w)
	if st == nil {
		return
	}

	u := st.result.Timeline.Window(from, to)
	response := &TimelineResponse{
		Columns: u.ColumnNames(),
		Rows:    make([]TimelineRow, 0, u.Len()),
	}
	if u.Len() > 0 {
		start, end := u.Span.Start, u.Span.End
		response.From, response.To = &start, &end
	}
	for _, row := range u.Rows() {
		cells := make([]TimelineCell, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = TimelineCell{Flow: c.Flow, Balance: c.Balance}
		}
		response.Rows = append(response.Rows, TimelineRow{Date: row.Date, Cells: cells})
	}

	writeJSONResponse(w, response)
}

// DiagnosticsResponse is the JSON response structure for the diagnostics
// endpoint.
type DiagnosticsResponse struct {
	Run         string             `json:"run"`
	Diagnostics []errors.ErrorJSON `json:"diagnostics"`
}

// handleGetDiagnostics handles GET requests to /api/diagnostics.
// Returns the records skipped by the last rebuild, parser problems first.
func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	st := s.requireState(w)
	if st == nil {
		return
	}

	writeJSONResponse(w, &DiagnosticsResponse{
		Run:         st.run.String(),
		Diagnostics: errors.NewJSONFormatter().FormatAllToSlice(st.diagnostics()),
	})
}

// StatusResponse is the JSON response structure for the status endpoint.
type StatusResponse struct {
	Version     string    `json:"version,omitempty"`
	ReadOnly    bool      `json:"readOnly"`
	Run         string    `json:"run,omitempty"`
	BuiltAt     time.Time `json:"builtAt,omitzero"`
	Files       []string  `json:"files"`
	Days        int       `json:"days"`
	Diagnostics int       `json:"diagnostics"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	response := &StatusResponse{Version: s.Version, ReadOnly: s.ReadOnly, Files: []string{}}
	if st := s.current(); st != nil {
		response.Run = st.run.String()
		response.BuiltAt = st.builtAt
		response.Files = append(response.Files, st.workspace.Files...)
		response.Days = st.result.Timeline.Len()
		response.Diagnostics = len(st.diagnostics())
	}
	writeJSONResponse(w, response)
}
