package keyvault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

func TestNewSealer(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = NewSealer("short")
	assert.ErrorIs(t, err, ErrMasterKeyShort)

	s, err = NewSealer(testMasterKey)
	require.NoError(t, err)
	assert.True(t, s.Enabled())
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testMasterKey)
	require.NoError(t, err)

	sealed, err := s.Seal("site-1", []byte("private-key"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "private-key")

	plain, err := s.Open("site-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "private-key", string(plain))
}

func TestSealer_BoundToSite(t *testing.T) {
	s, err := NewSealer(testMasterKey)
	require.NoError(t, err)

	sealed, err := s.Seal("site-1", []byte("private-key"))
	require.NoError(t, err)

	_, err = s.Open("site-2", sealed)
	assert.ErrorIs(t, err, ErrSealedKey)
}

func TestSealer_WrongMasterKey(t *testing.T) {
	a, err := NewSealer(testMasterKey)
	require.NoError(t, err)
	b, err := NewSealer(strings.Repeat("x", 32))
	require.NoError(t, err)

	sealed, err := a.Seal("site-1", []byte("private-key"))
	require.NoError(t, err)

	_, err = b.Open("site-1", sealed)
	assert.ErrorIs(t, err, ErrSealedKey)
}

func TestSealer_Plain(t *testing.T) {
	plainSealer, err := NewSealer("")
	require.NoError(t, err)
	sealing, err := NewSealer(testMasterKey)
	require.NoError(t, err)

	stored, err := plainSealer.Seal("site-1", []byte("private-key"))
	require.NoError(t, err)

	// Plain keys stay readable after sealing is turned on
	plain, err := sealing.Open("site-1", stored)
	require.NoError(t, err)
	assert.Equal(t, "private-key", string(plain))

	sealed, err := sealing.Seal("site-1", []byte("private-key"))
	require.NoError(t, err)
	_, err = plainSealer.Open("site-1", sealed)
	assert.ErrorIs(t, err, ErrSealedKey)
}

func TestSealer_Corrupt(t *testing.T) {
	s, err := NewSealer(testMasterKey)
	require.NoError(t, err)

	_, err = s.Open("site-1", nil)
	assert.ErrorIs(t, err, ErrSealedKey)

	_, err = s.Open("site-1", []byte{formatSealed, 1, 2, 3})
	assert.ErrorIs(t, err, ErrSealedKey)

	_, err = s.Open("site-1", []byte{0x7f, 1})
	assert.ErrorIs(t, err, ErrSealedKey)
}
