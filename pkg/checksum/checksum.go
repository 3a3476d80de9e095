// Package checksum computes the SHA-256 digests recorded with every export.
// All backends report the same lowercase hex form so a file written to S3 can
// be compared against one written locally.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Sum returns the hex SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hasher accumulates a digest while content streams through it.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Hex returns the digest of everything written so far.
func (h *Hasher) Hex() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	h := NewHasher()
	if _, err := io.Copy(h, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return h.Hex(), nil
}

// VerifySHA256 reports whether the content of reader has the expected digest.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
