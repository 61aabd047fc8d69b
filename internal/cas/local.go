package cas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a digest names no stored blob.
var ErrNotFound = errors.New("blob not found")

// localStore is a directory-backed blob store. Blobs live at
// <dir>/<hash[:2]>/<hash>, written via temp file + rename so readers never
// observe a partial blob.
type localStore struct {
	dir string
}

func newLocalStore(dir string) (*localStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat store dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store path %s is not a directory", dir)
	}
	return &localStore{dir: dir}, nil
}

func (l *localStore) path(d Digest) string {
	return filepath.Join(l.dir, d.Hash[:2], d.Hash)
}

func (l *localStore) put(content []byte) (Digest, error) {
	d := NewDigest(content)

	shard := filepath.Join(l.dir, d.Hash[:2])
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return Digest{}, fmt.Errorf("create shard dir: %w", err)
	}

	dest := l.path(d)
	if _, err := os.Stat(dest); err == nil {
		// Content-addressed: an existing blob with this hash is this blob.
		return d, nil
	}

	tmp, err := os.CreateTemp(shard, ".tmp-*")
	if err != nil {
		return Digest{}, fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Digest{}, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Digest{}, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return Digest{}, fmt.Errorf("commit blob: %w", err)
	}
	return d, nil
}

func (l *localStore) get(d Digest) ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(l.path(d))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", d, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", d, err)
	}
	if int64(len(content)) != d.SizeBytes {
		return nil, fmt.Errorf("blob %s has %d bytes on disk", d, len(content))
	}
	return content, nil
}

func (l *localStore) has(d Digest) bool {
	info, err := os.Stat(l.path(d))
	return err == nil && info.Size() == d.SizeBytes
}
