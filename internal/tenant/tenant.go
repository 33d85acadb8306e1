// Package tenant derives the per-user partition key from a client-supplied seed.
package tenant

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/notesrag/internal/apperr"
)

// Key is the tenant partition identifier. Its string form is a UUID so it
// fits UUID-typed storage columns.
type Key string

// DeriveKey hashes seed with SHA-256, keeps the first 128 bits and stamps the
// RFC 4122 version 4 and variant bits on them.
func DeriveKey(seed string) (Key, error) {
	if strings.TrimSpace(seed) == "" {
		return "", fmt.Errorf("tenant: seed is required: %w", apperr.ErrInvalidInput)
	}
	sum := sha256.Sum256([]byte(seed))
	var u uuid.UUID
	copy(u[:], sum[:16])
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return Key(u.String()), nil
}

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }
