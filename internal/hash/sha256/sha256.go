// Package sha256 derives fixed-length object names from cache keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Key hashes parts joined by a space, so method and URL map to one 64 character name.
func (h *Hasher) Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, " ")))
	return hex.EncodeToString(sum[:])
}
