package cas

import (
	"context"
	"errors"
	"fmt"
)

// Store mode labels.
const (
	ModeLocalOnly   = "local-only"
	ModeLocalRemote = "local-remote"
)

// Store is a cheaply-copyable handle to a content-addressed store. The mode
// (local-only vs local+remote) is fixed at construction.
type Store struct {
	local  *localStore
	remote *remoteStore
}

// LocalOnly opens a store backed only by the local directory.
func LocalOnly(dir string) (Store, error) {
	local, err := newLocalStore(dir)
	if err != nil {
		return Store{}, err
	}
	return Store{local: local}, nil
}

// WithRemote opens a store backed by the local directory plus a remote CAS
// service. servers should already be shuffled by the caller; the store
// treats them as an unordered, interchangeable set.
func WithRemote(dir string, servers []string, opts RemoteOptions) (Store, error) {
	local, err := newLocalStore(dir)
	if err != nil {
		return Store{}, err
	}
	remote, err := newRemoteStore(servers, opts)
	if err != nil {
		return Store{}, err
	}
	return Store{local: local, remote: remote}, nil
}

// Mode reports the store's backend configuration.
func (s Store) Mode() string {
	if s.remote != nil {
		return ModeLocalRemote
	}
	return ModeLocalOnly
}

// Put stores content locally and, in remote mode, uploads it. The digest is
// valid either way; a failed upload fails only the calling operation.
func (s Store) Put(ctx context.Context, content []byte) (Digest, error) {
	d, err := s.local.put(content)
	if err != nil {
		return Digest{}, fmt.Errorf("local store: %w", err)
	}
	if s.remote != nil {
		if err := s.remote.upload(ctx, d, content); err != nil {
			return Digest{}, fmt.Errorf("remote store: %w", err)
		}
	}
	return d, nil
}

// Get returns the content for d, reading locally first and falling through
// to the remote backend on a miss. Remote hits are cached locally.
func (s Store) Get(ctx context.Context, d Digest) ([]byte, error) {
	content, err := s.local.get(d)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, ErrNotFound) || s.remote == nil {
		return nil, err
	}

	content, err = s.remote.fetch(ctx, d)
	if err != nil {
		return nil, err
	}
	if _, err := s.local.put(content); err != nil {
		return nil, fmt.Errorf("cache fetched blob: %w", err)
	}
	return content, nil
}

// Has reports whether d is present locally.
func (s Store) Has(d Digest) bool {
	return s.local.has(d)
}
