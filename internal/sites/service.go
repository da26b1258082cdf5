package sites

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/pkg/id"
	"github.com/google/uuid"
)

// KeypairCreator creates the signing keypair of a new site.
type KeypairCreator interface {
	CreateKeypair(ctx context.Context, siteID string) (*domain.Keypair, error)
}

// CreateInput contains data for creating a site.
type CreateInput struct {
	Name            string
	SubscriberQuota *int
}

// UpdateInput contains the administrator-editable site fields.
type UpdateInput struct {
	Status          *domain.SiteStatus
	SubscriberQuota *int
}

// Service provides site business logic.
type Service struct {
	repo         Repository
	keys         KeypairCreator
	defaultQuota int
}

// NewService creates a new sites service.
func NewService(repo Repository, keys KeypairCreator, defaultQuota int) *Service {
	return &Service{
		repo:         repo,
		keys:         keys,
		defaultQuota: defaultQuota,
	}
}

// Create onboards a site for owner and generates its signing keypair.
// If the keypair cannot be created the site is removed again.
func (s *Service) Create(ctx context.Context, owner domain.Owner, input CreateInput) (*domain.Site, *domain.Keypair, error) {
	quota := s.defaultQuota
	if input.SubscriberQuota != nil && owner.Role == domain.RoleAdmin {
		quota = *input.SubscriberQuota
	}

	site := &domain.Site{
		Token:           id.NewToken(),
		OwnerID:         owner.UserID,
		Name:            input.Name,
		Status:          domain.SiteStatusActive,
		SubscriberQuota: quota,
	}

	if err := s.repo.CreateSite(ctx, site); err != nil {
		return nil, nil, err
	}

	keypair, err := s.keys.CreateKeypair(ctx, site.ID)
	if err != nil {
		if delErr := s.repo.DeleteSite(ctx, site.ID); delErr != nil {
			slog.Error("failed to remove site after keypair error", "site_id", site.ID, "error", delErr)
		}
		return nil, nil, fmt.Errorf("create site keypair: %w", err)
	}

	slog.Info("site created", "site_id", site.ID, "owner_id", site.OwnerID, "quota", site.SubscriberQuota)
	return site, keypair, nil
}

// GetByToken resolves a public site token.
func (s *Service) GetByToken(ctx context.Context, token string) (*domain.Site, error) {
	if !id.IsToken(token) {
		return nil, ErrSiteNotFound
	}
	return s.repo.GetSiteByToken(ctx, token)
}

// GetActiveByToken resolves a public site token and fails for suspended sites.
func (s *Service) GetActiveByToken(ctx context.Context, token string) (*domain.Site, error) {
	site, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !site.IsActive() {
		return nil, ErrSiteSuspended
	}
	return site, nil
}

// GetOwned returns the site if owner may manage it. Sites of other owners
// are reported as not found.
func (s *Service) GetOwned(ctx context.Context, owner domain.Owner, siteID string) (*domain.Site, error) {
	if _, err := uuid.Parse(siteID); err != nil {
		return nil, ErrSiteNotFound
	}
	site, err := s.repo.GetSiteByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !owner.CanManage(site.OwnerID) {
		return nil, ErrSiteNotFound
	}
	return site, nil
}

// ListOwned returns the owner's sites.
func (s *Service) ListOwned(ctx context.Context, owner domain.Owner) ([]domain.Site, error) {
	return s.repo.ListOwnerSites(ctx, owner.UserID)
}

// Update changes status or quota of a site.
func (s *Service) Update(ctx context.Context, siteID string, input UpdateInput) (*domain.Site, error) {
	if _, err := uuid.Parse(siteID); err != nil {
		return nil, ErrSiteNotFound
	}
	site, err := s.repo.GetSiteByID(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, ErrInvalidStatus
		}
		site.Status = *input.Status
	}
	if input.SubscriberQuota != nil {
		site.SubscriberQuota = *input.SubscriberQuota
	}

	if err := s.repo.UpdateSite(ctx, site); err != nil {
		return nil, err
	}

	slog.Info("site updated", "site_id", site.ID, "status", site.Status, "quota", site.SubscriberQuota)
	return site, nil
}

// Delete removes a site with all of its subscriptions and notifications.
func (s *Service) Delete(ctx context.Context, owner domain.Owner, siteID string) error {
	if _, err := s.GetOwned(ctx, owner, siteID); err != nil {
		return err
	}
	return s.repo.DeleteSite(ctx, siteID)
}
