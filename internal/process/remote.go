package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/cas"
)

// Default polling cadence for remote operations.
const defaultPollInterval = 100 * time.Millisecond

// RemoteOptions parameterizes the remote execution strategy. Certs and
// token are the same identity material handed to the remote store.
type RemoteOptions struct {
	Address            string
	CacheNamespace     string
	InstanceName       string
	RootCACerts        []byte
	BearerToken        string
	PlatformProperties map[string]string
	// Workers is the bookkeeping pool size; the engine passes the execution
	// parallelism plus two extra threads so status polling never competes
	// for execution slots.
	Workers      int
	PollInterval time.Duration
}

// RemoteRunner submits processes to a remote execution service and polls
// their operations from a dedicated worker pool.
type RemoteRunner struct {
	opts   RemoteOptions
	client *http.Client
	logger *slog.Logger

	jobs    chan pollJob
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

type pollJob struct {
	ctx         context.Context
	operationID string
	result      chan pollOutcome
}

type pollOutcome struct {
	res Result
	err error
}

// executeRequest is the submit payload.
type executeRequest struct {
	Fingerprint        string                `json:"fingerprint"`
	Argv               []string              `json:"argv"`
	Env                map[string]string     `json:"env,omitempty"`
	InputFiles         map[string]cas.Digest `json:"input_files,omitempty"`
	OutputFiles        []string              `json:"output_files,omitempty"`
	CacheNamespace     string                `json:"cache_namespace,omitempty"`
	InstanceName       string                `json:"instance_name,omitempty"`
	PlatformProperties map[string]string     `json:"platform_properties,omitempty"`
	TimeoutMS          int64                 `json:"timeout_ms,omitempty"`
}

type executeResponse struct {
	OperationID string `json:"operation_id"`
}

type operationResponse struct {
	Done   bool    `json:"done"`
	Error  string  `json:"error,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// NewRemoteRunner builds the remote strategy and starts its worker pool.
func NewRemoteRunner(opts RemoteOptions, logger *slog.Logger) (*RemoteRunner, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("remote execution address is required")
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", opts.Workers)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	client, err := cas.HTTPClient(opts.RootCACerts)
	if err != nil {
		return nil, err
	}

	r := &RemoteRunner{
		opts:   opts,
		client: client,
		logger: logger,
		jobs:   make(chan pollJob),
	}
	for i := 0; i < opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r, nil
}

// Close stops the worker pool. In-flight polls finish their current cycle.
func (r *RemoteRunner) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.jobs)
	r.wg.Wait()
}

// Run submits the request and waits for its operation to complete.
func (r *RemoteRunner) Run(ctx context.Context, req Request) (Result, error) {
	opID, err := r.submit(ctx, req)
	if err != nil {
		executionsTotal.WithLabelValues(StrategyRemote, "error").Inc()
		return Result{}, err
	}

	job := pollJob{
		ctx:         ctx,
		operationID: opID,
		result:      make(chan pollOutcome, 1),
	}
	start := time.Now()
	select {
	case r.jobs <- job:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case out := <-job.result:
		executionsTotal.WithLabelValues(StrategyRemote, outcomeLabel(out.err)).Inc()
		executionDuration.WithLabelValues(StrategyRemote).Observe(time.Since(start).Seconds())
		return out.res, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *RemoteRunner) submit(ctx context.Context, req Request) (string, error) {
	payload := executeRequest{
		Fingerprint:        req.Fingerprint(),
		Argv:               req.Argv,
		Env:                req.Env,
		InputFiles:         req.InputFiles,
		OutputFiles:        req.OutputFiles,
		CacheNamespace:     r.opts.CacheNamespace,
		InstanceName:       r.opts.InstanceName,
		PlatformProperties: r.opts.PlatformProperties,
		TimeoutMS:          req.Timeout.Milliseconds(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Address+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	r.authorize(httpReq)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit execution: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit execution: server returned %s", resp.Status)
	}

	var execResp executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&execResp); err != nil {
		return "", fmt.Errorf("decode execute response: %w", err)
	}
	if execResp.OperationID == "" {
		return "", fmt.Errorf("server returned no operation id")
	}
	return execResp.OperationID, nil
}

// worker polls operations to completion, one job at a time.
func (r *RemoteRunner) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		job.result <- r.poll(job.ctx, job.operationID)
	}
}

func (r *RemoteRunner) poll(ctx context.Context, operationID string) pollOutcome {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		op, err := r.checkOperation(ctx, operationID)
		if err != nil {
			return pollOutcome{err: err}
		}
		if op.Done {
			if op.Error != "" {
				return pollOutcome{err: fmt.Errorf("remote execution %s: %s", operationID, op.Error)}
			}
			if op.Result == nil {
				return pollOutcome{err: fmt.Errorf("remote execution %s: done without result", operationID)}
			}
			return pollOutcome{res: *op.Result}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return pollOutcome{err: ctx.Err()}
		}
	}
}

func (r *RemoteRunner) checkOperation(ctx context.Context, operationID string) (*operationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.Address+"/v1/operations/"+operationID, nil)
	if err != nil {
		return nil, err
	}
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll operation %s: %w", operationID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("poll operation %s: server returned %s", operationID, resp.Status)
	}

	var op operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decode operation %s: %w", operationID, err)
	}
	return &op, nil
}

func (r *RemoteRunner) authorize(req *http.Request) {
	if r.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.opts.BearerToken)
	}
}
