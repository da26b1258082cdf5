// Package ledger records what happened to every notification: per-attempt
// delivery events, aggregate counters and engagement statistics.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Stats are notification totals with derived engagement rates.
// Rates are 0 when their denominator is 0.
type Stats struct {
	Notifications int64   `json:"notifications"`
	Sent          int64   `json:"sent"`
	Failed        int64   `json:"failed"`
	Delivered     int64   `json:"delivered"`
	Clicked       int64   `json:"clicked"`
	DeliveryRate  float64 `json:"delivery_rate"`
	ClickRate     float64 `json:"click_rate"`
}

// Ledger is the delivery ledger.
type Ledger struct {
	repo Repository
}

// NewLedger creates a new delivery ledger.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// CreateNotification persists a new pending notification.
func (l *Ledger) CreateNotification(ctx context.Context, n *domain.Notification) error {
	n.Status = domain.NotificationStatusPending
	n.SentCount = 0
	n.FailedCount = 0
	if err := l.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// Finalize moves a pending notification to its final status and stores the
// dispatch counters. A notification can be finalized only once.
func (l *Ledger) Finalize(ctx context.Context, id string, sent, failed int, status domain.NotificationStatus) error {
	if status != domain.NotificationStatusSent && status != domain.NotificationStatusFailed {
		return ErrInvalidStatus
	}
	return l.repo.FinalizeNotification(ctx, id, sent, failed, status)
}

// RecordEvents appends delivery events in one batch.
func (l *Ledger) RecordEvents(ctx context.Context, events []domain.DeliveryEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := l.repo.InsertEvents(ctx, events); err != nil {
		return fmt.Errorf("insert delivery events: %w", err)
	}
	return nil
}

// RecordDispatchLog stores the aggregate outcome of one fan-out.
func (l *Ledger) RecordDispatchLog(ctx context.Context, log *domain.DispatchLog) error {
	if err := l.repo.InsertDispatchLog(ctx, log); err != nil {
		return fmt.Errorf("insert dispatch log: %w", err)
	}
	return nil
}

// RecordDelivered counts a delivery confirmation from the service worker.
func (l *Ledger) RecordDelivered(ctx context.Context, id string) {
	l.recordOutcome(ctx, id, domain.DeliveryOutcomeDelivered)
}

// RecordClick counts a click on a displayed notification.
func (l *Ledger) RecordClick(ctx context.Context, id string) {
	l.recordOutcome(ctx, id, domain.DeliveryOutcomeClicked)
}

// recordOutcome never fails: callbacks come from untrusted fire-and-forget
// browser contexts, so malformed or unknown ids are ignored and storage errors are logged.
func (l *Ledger) recordOutcome(ctx context.Context, id string, outcome domain.DeliveryOutcome) {
	if _, err := uuid.Parse(id); err != nil {
		recordCallback(outcome, "malformed")
		return
	}

	found, err := l.repo.IncrementOutcome(ctx, id, outcome)
	switch {
	case err != nil:
		recordCallback(outcome, "error")
		slog.Warn("failed to record callback", "notification_id", id, "outcome", outcome, "error", err)
	case !found:
		recordCallback(outcome, "unknown")
	default:
		recordCallback(outcome, "recorded")
	}
}

// GetNotification returns a notification of the site.
func (l *Ledger) GetNotification(ctx context.Context, siteID, id string) (*domain.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotificationNotFound
	}

	n, err := l.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.SiteID != siteID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

// ListNotifications returns the most recent notifications of the site.
func (l *Ledger) ListNotifications(ctx context.Context, siteID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return l.repo.ListNotifications(ctx, siteID, limit)
}

// SiteStats returns engagement statistics of one site.
func (l *Ledger) SiteStats(ctx context.Context, siteID string) (*Stats, error) {
	totals, err := l.repo.SiteTotals(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("site totals: %w", err)
	}
	return newStats(totals), nil
}

// GlobalStats returns engagement statistics across all sites.
func (l *Ledger) GlobalStats(ctx context.Context) (*Stats, error) {
	totals, err := l.repo.GlobalTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("global totals: %w", err)
	}
	return newStats(totals), nil
}

func newStats(t *Totals) *Stats {
	return &Stats{
		Notifications: t.Notifications,
		Sent:          t.Sent,
		Failed:        t.Failed,
		Delivered:     t.Delivered,
		Clicked:       t.Clicked,
		DeliveryRate:  ratio(t.Delivered, t.Sent),
		ClickRate:     ratio(t.Clicked, t.Delivered),
	}
}

func ratio(num, denom int64) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

