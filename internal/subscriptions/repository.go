// Package subscriptions provides the push subscription registry.
package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bissquit/push-relay/internal/domain"
)

// Store defines subscription data access.
type Store interface {
	// GetByFingerprint returns ErrSubscriptionNotFound if no row matches.
	GetByFingerprint(ctx context.Context, siteID, fingerprint string) (*domain.Subscription, error)
	// Insert creates an active subscription and fills ID and CreatedAt.
	Insert(ctx context.Context, sub *domain.Subscription) error
	// Refresh replaces payload and user agent, sets last_seen and activates the row.
	Refresh(ctx context.Context, id string, payload json.RawMessage, userAgent string, seenAt time.Time) error
	// Touch sets last_seen; it reports false if no row matches.
	Touch(ctx context.Context, siteID, fingerprint string, seenAt time.Time) (bool, error)
	// Deactivate is idempotent and a no-op for missing rows.
	Deactivate(ctx context.Context, siteID, fingerprint string) error
	DeactivateByID(ctx context.Context, id string) error
	// ListActive returns active subscriptions; a non-empty ids restricts the result to those ids.
	ListActive(ctx context.Context, siteID string, ids []string) ([]domain.Subscription, error)
	CountActive(ctx context.Context, siteID string) (int, error)
	// DeactivateStale deactivates up to limit active rows not seen since before.
	DeactivateStale(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Repository is a Store that can also run a unit of work under a per-site lock.
// Quota checks and the writes they guard run inside InSiteTx so concurrent
// subscribes for one site see each other's committed rows.
type Repository interface {
	Store
	InSiteTx(ctx context.Context, siteID string, fn func(ctx context.Context, tx Store) error) error
}
