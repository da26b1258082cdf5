// Package postgres provides PostgreSQL implementation of the sites repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/sites"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements sites.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const siteColumns = `id, token, owner_id, name, status, subscriber_quota, created_at, updated_at`

func scanSite(row pgx.Row) (*domain.Site, error) {
	var site domain.Site
	err := row.Scan(
		&site.ID,
		&site.Token,
		&site.OwnerID,
		&site.Name,
		&site.Status,
		&site.SubscriberQuota,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// CreateSite creates a new site.
func (r *Repository) CreateSite(ctx context.Context, site *domain.Site) error {
	query := `
		INSERT INTO sites (token, owner_id, name, status, subscriber_quota)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		site.Token,
		site.OwnerID,
		site.Name,
		site.Status,
		site.SubscriberQuota,
	).Scan(&site.ID, &site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create site: %w", err)
	}
	return nil
}

// GetSiteByID retrieves a site by ID.
func (r *Repository) GetSiteByID(ctx context.Context, id string) (*domain.Site, error) {
	site, err := scanSite(r.db.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sites.ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// GetSiteByToken retrieves a site by its public token.
func (r *Repository) GetSiteByToken(ctx context.Context, token string) (*domain.Site, error) {
	site, err := scanSite(r.db.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sites.ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site by token: %w", err)
	}
	return site, nil
}

// ListOwnerSites retrieves all sites of an owner.
func (r *Repository) ListOwnerSites(ctx context.Context, ownerID string) ([]domain.Site, error) {
	rows, err := r.db.Query(ctx, `SELECT `+siteColumns+` FROM sites WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner sites: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		result = append(result, *site)
	}
	return result, rows.Err()
}

// UpdateSite updates status and quota of a site.
func (r *Repository) UpdateSite(ctx context.Context, site *domain.Site) error {
	query := `
		UPDATE sites
		SET status = $2, subscriber_quota = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, site.ID, site.Status, site.SubscriberQuota).Scan(&site.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sites.ErrSiteNotFound
		}
		return fmt.Errorf("update site: %w", err)
	}
	return nil
}

// DeleteSite deletes a site; subscriptions, keys and notifications cascade.
func (r *Repository) DeleteSite(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sites.ErrSiteNotFound
	}
	return nil
}
