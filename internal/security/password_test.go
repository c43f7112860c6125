package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashIsNotPlaintext(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, "secret1", hash)
	assert.NoError(t, h.Check(hash, "secret1"))
	assert.ErrorIs(t, h.Check(hash, "wrong"), ErrPasswordMismatch)

	again, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salted hashes must differ")
}

func TestNewHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, DefaultCost, NewHasher(0).cost)
	assert.Equal(t, DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 10, NewHasher(10).cost)
}

func TestCodes(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)

	stored := HashCode(code)
	assert.NotEqual(t, code, stored)
	assert.True(t, CodeMatches(stored, code))
	assert.False(t, CodeMatches(stored, "abcdef"))
	assert.False(t, CodeMatches("", code))
}
