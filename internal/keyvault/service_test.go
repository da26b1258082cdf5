package keyvault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	keys map[string]*StoredKeypair
}

func newMockRepository() *mockRepository {
	return &mockRepository{keys: make(map[string]*StoredKeypair)}
}

func (m *mockRepository) CreateKeypair(_ context.Context, kp *StoredKeypair) error {
	if _, ok := m.keys[kp.SiteID]; ok {
		return ErrKeypairExists
	}
	kp.CreatedAt = time.Now()
	m.keys[kp.SiteID] = kp
	return nil
}

func (m *mockRepository) GetKeypair(_ context.Context, siteID string) (*StoredKeypair, error) {
	kp, ok := m.keys[siteID]
	if !ok {
		return nil, ErrNotConfigured
	}
	return kp, nil
}

func (m *mockRepository) GetPublicKey(_ context.Context, siteID string) (string, error) {
	kp, ok := m.keys[siteID]
	if !ok {
		return "", ErrNotConfigured
	}
	return kp.PublicKey, nil
}

func newTestVault(t *testing.T) (*Vault, *mockRepository) {
	t.Helper()
	sealer, err := NewSealer(testMasterKey)
	require.NoError(t, err)
	repo := newMockRepository()
	return NewVault(repo, sealer), repo
}

func TestVault_CreateKeypair(t *testing.T) {
	vault, repo := newTestVault(t)
	ctx := context.Background()

	kp, err := vault.CreateKeypair(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, "site-1", kp.SiteID)
	assert.NotEmpty(t, kp.PublicKey)
	assert.NotEmpty(t, kp.PrivateKey)

	// Private key is never stored in the clear
	stored := repo.keys["site-1"]
	assert.NotContains(t, string(stored.SealedPrivateKey), kp.PrivateKey)

	loaded, err := vault.GetKeypair(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, loaded.PublicKey)
	assert.Equal(t, kp.PrivateKey, loaded.PrivateKey)

	publicKey, err := vault.GetPublicKey(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, publicKey)
}

func TestVault_CreateKeypair_NoRotation(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	_, err := vault.CreateKeypair(ctx, "site-1")
	require.NoError(t, err)

	_, err = vault.CreateKeypair(ctx, "site-1")
	assert.ErrorIs(t, err, ErrKeypairExists)
}

func TestVault_CreateKeypair_GenerationError(t *testing.T) {
	sealer, err := NewSealer("")
	require.NoError(t, err)
	repo := newMockRepository()
	vault := NewVaultWithGenerator(repo, sealer, func() (string, string, error) {
		return "", "", errors.New("entropy exhausted")
	})

	_, err = vault.CreateKeypair(context.Background(), "site-1")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Empty(t, repo.keys)
}

func TestVault_NotConfigured(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	_, err := vault.GetPublicKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = vault.GetKeypair(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
