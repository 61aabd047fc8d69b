package cas

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newLocalOnly(t *testing.T) Store {
	t.Helper()
	s, err := LocalOnly(t.TempDir())
	if err != nil {
		t.Fatalf("LocalOnly: %v", err)
	}
	return s
}

func TestLocalPutGetRoundtrip(t *testing.T) {
	s := newLocalOnly(t)
	ctx := context.Background()

	content := []byte("the quick brown fox")
	d, err := s.Put(ctx, content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if d.SizeBytes != int64(len(content)) {
		t.Errorf("digest size = %d, want %d", d.SizeBytes, len(content))
	}

	got, err := s.Get(ctx, d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Get = %q, want %q", got, content)
	}
}

func TestLocalPutIsIdempotent(t *testing.T) {
	s := newLocalOnly(t)
	ctx := context.Background()

	d1, err := s.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	d2, err := s.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digests differ: %v vs %v", d1, d2)
	}
}

func TestGetMissingBlob(t *testing.T) {
	s := newLocalOnly(t)

	d := NewDigest([]byte("never stored"))
	_, err := s.Get(context.Background(), d)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestLocalOnlyMode(t *testing.T) {
	s := newLocalOnly(t)
	if got := s.Mode(); got != ModeLocalOnly {
		t.Errorf("Mode = %q, want %q", got, ModeLocalOnly)
	}
}

func TestWithRemoteMode(t *testing.T) {
	s, err := WithRemote(t.TempDir(), []string{"https://cas.example:443"}, RemoteOptions{
		ThreadCount:  1,
		ChunkBytes:   1024,
		ChunkTimeout: time.Second,
		Backoff:      DefaultBackoff(),
	})
	if err != nil {
		t.Fatalf("WithRemote: %v", err)
	}
	if got := s.Mode(); got != ModeLocalRemote {
		t.Errorf("Mode = %q, want %q", got, ModeLocalRemote)
	}
}

func TestWithRemoteRequiresServers(t *testing.T) {
	_, err := WithRemote(t.TempDir(), nil, RemoteOptions{
		ChunkBytes:   1024,
		ChunkTimeout: time.Second,
		Backoff:      DefaultBackoff(),
	})
	if err == nil {
		t.Fatal("WithRemote with no servers succeeded, want error")
	}
}

func TestBlobLandsInShardedPath(t *testing.T) {
	dir := t.TempDir()
	s, err := LocalOnly(dir)
	if err != nil {
		t.Fatalf("LocalOnly: %v", err)
	}

	d, err := s.Put(context.Background(), []byte("sharded"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	want := filepath.Join(dir, d.Hash[:2], d.Hash)
	if _, err := os.Stat(want); err != nil {
		t.Errorf("blob not at %s: %v", want, err)
	}
}
