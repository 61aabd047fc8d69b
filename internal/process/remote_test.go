package process_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/logging"
	"github.com/seantiz/anvil/internal/process"
)

// execServer is an in-memory remote execution service. Operations complete
// after pollsUntilDone status checks.
type execServer struct {
	mu             sync.Mutex
	nextOp         int
	polls          map[string]int
	pollsUntilDone int
	submitted      []map[string]any
	failWith       string
	authToken      string
}

func (es *execServer) handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/execute", es.handleExecute)
	r.Get("/v1/operations/{id}", es.handleOperation)
	return r
}

func (es *execServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.authToken != "" && r.Header.Get("Authorization") != "Bearer "+es.authToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	es.submitted = append(es.submitted, payload)

	es.nextOp++
	id := "op-" + strconv.Itoa(es.nextOp)
	if es.polls == nil {
		es.polls = map[string]int{}
	}
	es.polls[id] = 0
	json.NewEncoder(w).Encode(map[string]string{"operation_id": id})
}

func (es *execServer) handleOperation(w http.ResponseWriter, r *http.Request) {
	es.mu.Lock()
	defer es.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := es.polls[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	es.polls[id]++

	if es.polls[id] < es.pollsUntilDone {
		json.NewEncoder(w).Encode(map[string]any{"done": false})
		return
	}
	if es.failWith != "" {
		json.NewEncoder(w).Encode(map[string]any{"done": true, "error": es.failWith})
		return
	}
	stdout := cas.NewDigest([]byte("remote stdout"))
	json.NewEncoder(w).Encode(map[string]any{
		"done": true,
		"result": map[string]any{
			"exit_code": 0,
			"stdout":    map[string]any{"hash": stdout.Hash, "size_bytes": stdout.SizeBytes},
			"stderr":    map[string]any{"hash": cas.NewDigest(nil).Hash, "size_bytes": 0},
		},
	})
}

func newRemote(t *testing.T, es *execServer) *process.RemoteRunner {
	t.Helper()
	srv := httptest.NewServer(es.handler())
	t.Cleanup(srv.Close)

	r, err := process.NewRemoteRunner(process.RemoteOptions{
		Address:        srv.URL,
		CacheNamespace: "ci",
		InstanceName:   "main",
		BearerToken:    es.authToken,
		PlatformProperties: map[string]string{
			"os": "linux",
		},
		Workers:      4, // parallelism 2 + 2 bookkeeping
		PollInterval: 5 * time.Millisecond,
	}, logging.Nop().Logger)
	if err != nil {
		t.Fatalf("NewRemoteRunner: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRemoteRunPollsToCompletion(t *testing.T) {
	es := &execServer{pollsUntilDone: 3, authToken: "sekrit"}
	r := newRemote(t, es)

	res, err := r.Run(context.Background(), process.Request{
		Argv:        []string{"cc", "-c", "main.c"},
		Description: "compile main.c",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Stdout.Empty() {
		t.Error("stdout digest missing from remote result")
	}
}

func TestRemoteRunCarriesExecutionParameters(t *testing.T) {
	es := &execServer{pollsUntilDone: 1}
	r := newRemote(t, es)

	if _, err := r.Run(context.Background(), process.Request{Argv: []string{"true"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.submitted) != 1 {
		t.Fatalf("submissions = %d, want 1", len(es.submitted))
	}
	got := es.submitted[0]
	if got["cache_namespace"] != "ci" {
		t.Errorf("cache_namespace = %v, want ci", got["cache_namespace"])
	}
	if got["instance_name"] != "main" {
		t.Errorf("instance_name = %v, want main", got["instance_name"])
	}
	props, _ := got["platform_properties"].(map[string]any)
	if props["os"] != "linux" {
		t.Errorf("platform_properties = %v", got["platform_properties"])
	}
	if got["fingerprint"] == "" {
		t.Error("fingerprint missing from submission")
	}
}

func TestRemoteRunReportsServiceFailure(t *testing.T) {
	es := &execServer{pollsUntilDone: 1, failWith: "worker lost"}
	r := newRemote(t, es)

	_, err := r.Run(context.Background(), process.Request{Argv: []string{"true"}})
	if err == nil {
		t.Fatal("Run succeeded, want remote failure")
	}
}

func TestRemoteRunHonorsCancellation(t *testing.T) {
	es := &execServer{pollsUntilDone: 1 << 30} // never completes
	r := newRemote(t, es)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Run(ctx, process.Request{Argv: []string{"true"}}); err == nil {
		t.Fatal("Run outlived its context")
	}
}

func TestNewRemoteRunnerValidation(t *testing.T) {
	if _, err := process.NewRemoteRunner(process.RemoteOptions{Workers: 4}, logging.Nop().Logger); err == nil {
		t.Error("missing address accepted")
	}
	if _, err := process.NewRemoteRunner(process.RemoteOptions{Address: "http://x", Workers: 0}, logging.Nop().Logger); err == nil {
		t.Error("zero workers accepted")
	}
}
