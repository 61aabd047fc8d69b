package cas

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// RemoteOptions configures the remote CAS backend. CA certs and bearer token
// are the same identity material used for remote execution.
type RemoteOptions struct {
	InstanceName string
	RootCACerts  []byte
	BearerToken  string
	ThreadCount  int
	ChunkBytes   int
	ChunkTimeout time.Duration
	Backoff      BackoffConfig
	RPCRetries   int
}

// remoteStore talks to one of a set of interchangeable CAS servers over
// HTTP. The server list arrives pre-shuffled; requests rotate through it to
// spread load, and every server is assumed to hold the same content.
type remoteStore struct {
	servers []string
	client  *http.Client
	opts    RemoteOptions

	// sem bounds concurrent RPCs at the configured thread count.
	sem *semaphore.Weighted

	next atomic.Uint64
}

// HTTPClient builds an HTTP client trusting the given root CA bundle in
// addition to nothing else when a bundle is supplied, or the system pool
// otherwise. Shared by the store and the remote execution client.
func HTTPClient(rootCACerts []byte) (*http.Client, error) {
	if len(rootCACerts) == 0 {
		return &http.Client{}, nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootCACerts) {
		return nil, fmt.Errorf("root CA bundle contains no usable certificates")
	}
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}, nil
}

func newRemoteStore(servers []string, opts RemoteOptions) (*remoteStore, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("remote store requires at least one server")
	}
	if opts.ChunkBytes <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkBytes)
	}
	threads := opts.ThreadCount
	if threads <= 0 {
		threads = 1
	}
	client, err := HTTPClient(opts.RootCACerts)
	if err != nil {
		return nil, err
	}
	return &remoteStore{
		servers: servers,
		client:  client,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(threads)),
	}, nil
}

// pickServer rotates through the shuffled server list.
func (r *remoteStore) pickServer() string {
	n := r.next.Add(1) - 1
	return r.servers[n%uint64(len(r.servers))]
}

func (r *remoteStore) blobURL(server string, d Digest) string {
	return fmt.Sprintf("%s/v1/cas/%s/blobs/%s/%d", server, r.opts.InstanceName, d.Hash, d.SizeBytes)
}

// transientError marks a failure that should be retried under the backoff
// policy: timeouts, connection errors, and 5xx responses.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// withRetries runs op up to 1+RPCRetries times, spacing attempts per the
// backoff policy. Non-transient errors abort immediately. Exhausting the
// retry budget surfaces the last error to the caller; the store itself stays
// healthy.
func (r *remoteStore) withRetries(ctx context.Context, what string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.opts.RPCRetries; attempt++ {
		if attempt > 0 {
			rpcRetries.Inc()
			select {
			case <-time.After(r.opts.Backoff.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		var te *transientError
		if !errors.As(err, &te) {
			return fmt.Errorf("%s: %w", what, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", what, r.opts.RPCRetries+1, lastErr)
}

// fetch downloads a blob. A 404 is permanent (ErrNotFound); network errors
// and 5xx responses are transient.
func (r *remoteStore) fetch(ctx context.Context, d Digest) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	var content []byte
	err := r.withRetries(ctx, fmt.Sprintf("fetch %s", d), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.blobURL(r.pickServer(), d), nil)
		if err != nil {
			return err
		}
		r.authorize(req)

		resp, err := r.client.Do(req)
		if err != nil {
			return &transientError{err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", d, ErrNotFound)
		case resp.StatusCode >= 500:
			return &transientError{err: fmt.Errorf("server returned %s", resp.Status)}
		default:
			return fmt.Errorf("server returned %s", resp.Status)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{err: err}
		}
		if got := NewDigest(body); got != d {
			return fmt.Errorf("server returned %s for requested %s", got, d)
		}
		content = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	remoteRPCs.WithLabelValues("fetch").Inc()
	return content, nil
}

// upload writes a blob in chunks of ChunkBytes. Each chunk PUT carries its
// own timeout; a chunk that does not complete in time is a transient failure
// retried under the backoff policy, not data corruption. The final chunk is
// marked so the server can seal the blob.
func (r *remoteStore) upload(ctx context.Context, d Digest, content []byte) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	server := r.pickServer()
	for offset := 0; offset == 0 || offset < len(content); offset += r.opts.ChunkBytes {
		end := offset + r.opts.ChunkBytes
		if end > len(content) {
			end = len(content)
		}
		chunk := content[offset:end]
		final := end == len(content)

		err := r.withRetries(ctx, fmt.Sprintf("upload %s offset %d", d, offset), func(ctx context.Context) error {
			return r.putChunk(ctx, server, d, chunk, offset, final)
		})
		if err != nil {
			uploadsTotal.WithLabelValues("error").Inc()
			return err
		}
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (r *remoteStore) putChunk(ctx context.Context, server string, d Digest, chunk []byte, offset int, final bool) error {
	cctx, cancel := context.WithTimeout(ctx, r.opts.ChunkTimeout)
	defer cancel()

	url := r.blobURL(server, d) + "?offset=" + strconv.Itoa(offset)
	if final {
		url += "&final=1"
	}
	req, err := http.NewRequestWithContext(cctx, http.MethodPut, url, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		// Includes per-chunk timeout expiry.
		return &transientError{err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= 500:
		return &transientError{err: fmt.Errorf("server returned %s", resp.Status)}
	default:
		return fmt.Errorf("server returned %s", resp.Status)
	}
}

func (r *remoteStore) authorize(req *http.Request) {
	if r.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.opts.BearerToken)
	}
}
