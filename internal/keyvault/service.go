package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/bissquit/push-relay/internal/domain"
)

// GenerateFunc produces a base64url private key and public key.
type GenerateFunc func() (privateKey, publicKey string, err error)

// Vault is the per-site signing key store.
type Vault struct {
	repo     Repository
	sealer   *Sealer
	generate GenerateFunc
}

// NewVault creates a new key vault that generates VAPID keys with webpush-go.
func NewVault(repo Repository, sealer *Sealer) *Vault {
	return NewVaultWithGenerator(repo, sealer, webpush.GenerateVAPIDKeys)
}

// NewVaultWithGenerator creates a vault with a custom key generator.
func NewVaultWithGenerator(repo Repository, sealer *Sealer, generate GenerateFunc) *Vault {
	return &Vault{
		repo:     repo,
		sealer:   sealer,
		generate: generate,
	}
}

// CreateKeypair generates and persists the site's keypair.
// Keys are never rotated: browsers bind their endpoints to the public key used at subscribe time.
func (v *Vault) CreateKeypair(ctx context.Context, siteID string) (*domain.Keypair, error) {
	privateKey, publicKey, err := v.generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if privateKey == "" || publicKey == "" {
		return nil, fmt.Errorf("%w: empty key material", ErrGeneration)
	}

	sealed, err := v.sealer.Seal(siteID, []byte(privateKey))
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}

	stored := &StoredKeypair{
		SiteID:           siteID,
		PublicKey:        publicKey,
		SealedPrivateKey: sealed,
	}
	if err := v.repo.CreateKeypair(ctx, stored); err != nil {
		return nil, err
	}

	slog.Info("signing keypair created", "site_id", siteID, "sealed", v.sealer.Enabled())

	return &domain.Keypair{
		SiteID:     siteID,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		CreatedAt:  stored.CreatedAt,
	}, nil
}

// GetPublicKey returns only the public half; safe for untrusted callers.
func (v *Vault) GetPublicKey(ctx context.Context, siteID string) (string, error) {
	return v.repo.GetPublicKey(ctx, siteID)
}

// GetKeypair returns the full keypair. Server-internal only.
func (v *Vault) GetKeypair(ctx context.Context, siteID string) (*domain.Keypair, error) {
	stored, err := v.repo.GetKeypair(ctx, siteID)
	if err != nil {
		return nil, err
	}

	privateKey, err := v.sealer.Open(siteID, stored.SealedPrivateKey)
	if err != nil {
		if errors.Is(err, ErrSealedKey) {
			slog.Error("cannot open site private key", "site_id", siteID, "error", err)
		}
		return nil, fmt.Errorf("open private key: %w", err)
	}

	return &domain.Keypair{
		SiteID:     stored.SiteID,
		PublicKey:  stored.PublicKey,
		PrivateKey: string(privateKey),
		CreatedAt:  stored.CreatedAt,
	}, nil
}
