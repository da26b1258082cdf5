// Package sites provides tenant site lookup and onboarding.
package sites

import (
	"context"

	"github.com/bissquit/push-relay/internal/domain"
)

// Repository defines the interface for site data access.
type Repository interface {
	CreateSite(ctx context.Context, site *domain.Site) error
	GetSiteByID(ctx context.Context, id string) (*domain.Site, error)
	GetSiteByToken(ctx context.Context, token string) (*domain.Site, error)
	ListOwnerSites(ctx context.Context, ownerID string) ([]domain.Site, error)
	UpdateSite(ctx context.Context, site *domain.Site) error
	DeleteSite(ctx context.Context, id string) error
}
