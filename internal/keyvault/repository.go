// Package keyvault stores and serves per-site VAPID signing keypairs.
package keyvault

import (
	"context"
	"time"
)

// StoredKeypair is a keypair as persisted: the private half is sealed.
type StoredKeypair struct {
	SiteID           string
	PublicKey        string
	SealedPrivateKey []byte
	CreatedAt        time.Time
}

// Repository defines the interface for keypair storage.
type Repository interface {
	// CreateKeypair inserts a keypair; returns ErrKeypairExists if the site already has one.
	CreateKeypair(ctx context.Context, kp *StoredKeypair) error
	// GetKeypair returns ErrNotConfigured if the site has no keypair.
	GetKeypair(ctx context.Context, siteID string) (*StoredKeypair, error)
	GetPublicKey(ctx context.Context, siteID string) (string, error)
}
