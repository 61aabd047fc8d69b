package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	BuildRoot    string `json:"build_root"`
	GraphEntries int    `json:"graph_entries"`
	StoreMode    string `json:"store_mode"`
	ExecStrategy string `json:"exec_strategy"`
	ExecBound    int    `json:"exec_bound"`
	ExecInFlight int    `json:"exec_in_flight"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	runner := s.core.Runner()
	s.writeJSON(w, http.StatusOK, statsResponse{
		BuildRoot:    s.core.BuildRoot,
		GraphEntries: s.core.Graph.Len(),
		StoreMode:    s.core.Store().Mode(),
		ExecStrategy: runner.Strategy(),
		ExecBound:    runner.Bound(),
		ExecInFlight: runner.InFlight(),
	})
}
