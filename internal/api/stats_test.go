package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/process"
)

func TestGetStats(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if stats.GraphEntries != 0 {
		t.Errorf("graph_entries = %d, want 0", stats.GraphEntries)
	}
	if stats.StoreMode != cas.ModeLocalOnly {
		t.Errorf("store_mode = %q, want %q", stats.StoreMode, cas.ModeLocalOnly)
	}
	if stats.ExecStrategy != process.StrategyLocal {
		t.Errorf("exec_strategy = %q, want %q", stats.ExecStrategy, process.StrategyLocal)
	}
	if stats.ExecBound <= 0 {
		t.Errorf("exec_bound = %d, want > 0", stats.ExecBound)
	}
	if stats.BuildRoot == "" {
		t.Error("build_root must be set")
	}
}
