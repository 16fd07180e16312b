// Package md5 provides the content-addressed identity used to deduplicate links.
package md5

import (
	"crypto/md5" //nolint:gosec // identity digest, not a security boundary
	"encoding/hex"
)

// Hasher implements harvest.Hasher using MD5 (128-bit hex digests).
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) //nolint:gosec // see package import
	return hex.EncodeToString(sum[:]), nil
}

// HashString hashes the UTF-8 bytes of s.
func HashString(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see package import
	return hex.EncodeToString(sum[:])
}
