package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bissquit/push-relay/internal/domain"
)

// MaxUserAgentBytes caps the stored client user agent.
const MaxUserAgentBytes = 512

// Registry manages push subscriptions of tenant sites.
type Registry struct {
	repo Repository
	now  func() time.Time
}

// NewRegistry creates a new subscription registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo: repo,
		now:  time.Now,
	}
}

// Upsert registers a browser subscription for the site, or refreshes it if the
// endpoint is already known. Calling it twice with the same endpoint never creates two rows.
//
// The quota is only consulted when the call would add an active subscription
// (a new row, or reactivation of a pruned one). On ErrQuotaExceeded nothing is written.
func (r *Registry) Upsert(ctx context.Context, site *domain.Site, raw []byte, userAgent string) (string, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		return "", err
	}

	fingerprint := payload.Fingerprint()
	seenAt := r.now()
	userAgent = clampUserAgent(userAgent)

	var id string
	err = r.repo.InSiteTx(ctx, site.ID, func(ctx context.Context, tx Store) error {
		existing, err := tx.GetByFingerprint(ctx, site.ID, fingerprint)
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return err
		}

		if existing == nil || !existing.IsActive {
			if err := checkQuota(ctx, tx, site); err != nil {
				return err
			}
		}

		if existing != nil {
			id = existing.ID
			return tx.Refresh(ctx, existing.ID, payload.Raw(), userAgent, seenAt)
		}

		sub := &domain.Subscription{
			SiteID:      site.ID,
			Fingerprint: fingerprint,
			Payload:     payload.Raw(),
			UserAgent:   userAgent,
			IsActive:    true,
			LastSeen:    seenAt,
		}
		if err := tx.Insert(ctx, sub); err != nil {
			return err
		}
		id = sub.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			recordQuotaRejected()
			slog.Info("subscription rejected, quota exceeded",
				"site_id", site.ID,
				"quota", site.SubscriberQuota,
			)
		}
		return "", err
	}

	return id, nil
}

// Heartbeat refreshes last_seen of the subscription identified by ref (endpoint
// URL or fingerprint). With reactivate set it also revives a pruned subscription,
// quota permitting. A missing subscription is not an error.
func (r *Registry) Heartbeat(ctx context.Context, site *domain.Site, ref string, reactivate bool) error {
	fingerprint, err := ResolveFingerprint(ref)
	if err != nil {
		return err
	}
	seenAt := r.now()

	if !reactivate {
		_, err := r.repo.Touch(ctx, site.ID, fingerprint, seenAt)
		return err
	}

	return r.repo.InSiteTx(ctx, site.ID, func(ctx context.Context, tx Store) error {
		existing, err := tx.GetByFingerprint(ctx, site.ID, fingerprint)
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				return nil
			}
			return err
		}

		if existing.IsActive {
			_, err := tx.Touch(ctx, site.ID, fingerprint, seenAt)
			return err
		}

		if err := checkQuota(ctx, tx, site); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				slog.Debug("heartbeat reactivation skipped, quota exceeded", "site_id", site.ID)
				_, err := tx.Touch(ctx, site.ID, fingerprint, seenAt)
				return err
			}
			return err
		}

		return tx.Refresh(ctx, existing.ID, existing.Payload, existing.UserAgent, seenAt)
	})
}

// Deactivate marks the subscription inactive. Idempotent; missing rows are ignored.
func (r *Registry) Deactivate(ctx context.Context, site *domain.Site, ref string) error {
	fingerprint, err := ResolveFingerprint(ref)
	if err != nil {
		return err
	}
	return r.repo.Deactivate(ctx, site.ID, fingerprint)
}

// DeactivateByID marks the subscription inactive by id.
func (r *Registry) DeactivateByID(ctx context.Context, id string) error {
	return r.repo.DeactivateByID(ctx, id)
}

// ListActive returns the site's active subscriptions, optionally restricted to subset ids.
func (r *Registry) ListActive(ctx context.Context, siteID string, subset []string) ([]domain.Subscription, error) {
	subs, err := r.repo.ListActive(ctx, siteID, subset)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}

// CountActive returns the number of active subscriptions of the site.
func (r *Registry) CountActive(ctx context.Context, siteID string) (int, error) {
	return r.repo.CountActive(ctx, siteID)
}

// DeactivateStale deactivates subscriptions not seen since before.
func (r *Registry) DeactivateStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	return r.repo.DeactivateStale(ctx, before, limit)
}

// checkQuota fails when adding one more active subscription would exceed the site quota.
// A quota of zero means unlimited.
func checkQuota(ctx context.Context, tx Store, site *domain.Site) error {
	if site.SubscriberQuota <= 0 {
		return nil
	}
	count, err := tx.CountActive(ctx, site.ID)
	if err != nil {
		return fmt.Errorf("count active subscriptions: %w", err)
	}
	if count >= site.SubscriberQuota {
		return ErrQuotaExceeded
	}
	return nil
}

// clampUserAgent cuts ua to MaxUserAgentBytes on a rune boundary.
func clampUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentBytes {
		return ua
	}
	cut := MaxUserAgentBytes
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
