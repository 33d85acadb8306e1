package tenant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesrag/internal/apperr"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	a, err := DeriveKey("client-123")
	require.NoError(t, err)
	b, err := DeriveKey("client-123")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveKey_DistinctSeeds(t *testing.T) {
	a, err := DeriveKey("alice")
	require.NoError(t, err)
	b, err := DeriveKey("bob")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveKey_UUIDShape(t *testing.T) {
	k, err := DeriveKey("client-123")
	require.NoError(t, err)

	u, err := uuid.Parse(k.String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), u.Version())
	assert.Equal(t, uuid.RFC4122, u.Variant())
}

func TestDeriveKey_EmptySeed(t *testing.T) {
	_, err := DeriveKey("  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
