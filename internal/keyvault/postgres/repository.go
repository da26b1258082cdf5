// Package postgres provides PostgreSQL implementation of the key vault repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/push-relay/internal/keyvault"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements keyvault.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateKeypair inserts a site keypair.
func (r *Repository) CreateKeypair(ctx context.Context, kp *keyvault.StoredKeypair) error {
	query := `
		INSERT INTO site_keypairs (site_id, public_key, private_key_sealed)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, kp.SiteID, kp.PublicKey, kp.SealedPrivateKey).Scan(&kp.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return keyvault.ErrKeypairExists
		}
		return fmt.Errorf("create keypair: %w", err)
	}
	return nil
}

// GetKeypair retrieves the stored keypair for a site.
func (r *Repository) GetKeypair(ctx context.Context, siteID string) (*keyvault.StoredKeypair, error) {
	query := `
		SELECT site_id, public_key, private_key_sealed, created_at
		FROM site_keypairs
		WHERE site_id = $1
	`
	var kp keyvault.StoredKeypair
	err := r.db.QueryRow(ctx, query, siteID).Scan(&kp.SiteID, &kp.PublicKey, &kp.SealedPrivateKey, &kp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, keyvault.ErrNotConfigured
		}
		return nil, fmt.Errorf("get keypair: %w", err)
	}
	return &kp, nil
}

// GetPublicKey retrieves only the public key for a site.
func (r *Repository) GetPublicKey(ctx context.Context, siteID string) (string, error) {
	var publicKey string
	err := r.db.QueryRow(ctx, `SELECT public_key FROM site_keypairs WHERE site_id = $1`, siteID).Scan(&publicKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", keyvault.ErrNotConfigured
		}
		return "", fmt.Errorf("get public key: %w", err)
	}
	return publicKey, nil
}
