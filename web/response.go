package web

import (
	"encoding/json"
	"net/http"
)

// writeJSONResponse writes a JSON response to the http.ResponseWriter.
// If encoding fails, it writes an error response.
func writeJSONResponse(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// requireState returns the current state or answers 503 when no rebuild has
// succeeded yet.
func (s *Server) requireState(w http.ResponseWriter) *state {
	st := s.current()
	if st == nil {
		http.Error(w, "no successful rebuild yet", http.StatusServiceUnavailable)
	}
	return st
}
