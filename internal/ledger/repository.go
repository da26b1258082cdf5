package ledger

import (
	"context"

	"github.com/bissquit/push-relay/internal/domain"
)

// Totals are raw notification counters aggregated over a scope.
type Totals struct {
	Notifications int64
	Sent          int64
	Failed        int64
	Delivered     int64
	Clicked       int64
}

// Repository defines the interface for ledger data access.
type Repository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	// FinalizeNotification returns ErrAlreadyFinalized when the row is not pending.
	FinalizeNotification(ctx context.Context, id string, sent, failed int, status domain.NotificationStatus) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	ListNotifications(ctx context.Context, siteID string, limit int) ([]domain.Notification, error)

	InsertEvents(ctx context.Context, events []domain.DeliveryEvent) error
	InsertDispatchLog(ctx context.Context, log *domain.DispatchLog) error

	// IncrementOutcome bumps the delivered or clicked counter and appends the matching
	// event in one statement. It reports false when the notification does not exist.
	IncrementOutcome(ctx context.Context, id string, outcome domain.DeliveryOutcome) (bool, error)

	SiteTotals(ctx context.Context, siteID string) (*Totals, error)
	GlobalTotals(ctx context.Context) (*Totals, error)
}
