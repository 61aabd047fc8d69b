// Package cas implements the content-addressed store backing node results
// and process inputs/outputs. A store always has a directory-backed local
// backend; when remote servers are configured it additionally reads through
// and writes through to a remote CAS service with retry/backoff.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest identifies a blob by the SHA-256 of its content plus its size.
type Digest struct {
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
}

// NewDigest computes the digest of content.
func NewDigest(content []byte) Digest {
	sum := sha256.Sum256(content)
	return Digest{
		Hash:      hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(content)),
	}
}

// Empty reports whether d is the zero digest.
func (d Digest) Empty() bool {
	return d.Hash == ""
}

func (d Digest) String() string {
	return fmt.Sprintf("%s/%d", d.Hash, d.SizeBytes)
}

// validate rejects digests that cannot name a blob.
func (d Digest) validate() error {
	if len(d.Hash) != sha256.Size*2 {
		return fmt.Errorf("digest hash %q is not a sha256 hex string", d.Hash)
	}
	if d.SizeBytes < 0 {
		return fmt.Errorf("digest size %d is negative", d.SizeBytes)
	}
	return nil
}
