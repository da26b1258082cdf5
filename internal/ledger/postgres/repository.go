// Package postgres provides PostgreSQL implementation of the delivery ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements ledger.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, site_id, title, body, url, sent_count, failed_count,
	delivered_count, clicked_count, status, created_at, sent_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.SiteID,
		&n.Title,
		&n.Body,
		&n.URL,
		&n.SentCount,
		&n.FailedCount,
		&n.DeliveredCount,
		&n.ClickedCount,
		&n.Status,
		&n.CreatedAt,
		&n.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification creates a new notification.
func (r *Repository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (site_id, title, body, url, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, n.SiteID, n.Title, n.Body, n.URL, n.Status).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// FinalizeNotification stores counters and the final status of a pending notification.
func (r *Repository) FinalizeNotification(ctx context.Context, id string, sent, failed int, status domain.NotificationStatus) error {
	query := `
		UPDATE notifications
		SET sent_count = $2, failed_count = $3, status = $4, sent_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, id, sent, failed, status)
	if err != nil {
		return fmt.Errorf("finalize notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ledger.ErrAlreadyFinalized
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (r *Repository) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns the newest notifications of a site.
func (r *Repository) ListNotifications(ctx context.Context, siteID string, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE site_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}

var eventColumns = []string{"notification_id", "subscription_id", "outcome", "status_code", "error", "created_at"}

// InsertEvents appends delivery events with COPY.
func (r *Repository) InsertEvents(ctx context.Context, events []domain.DeliveryEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		notificationID, err := uuidValue(e.NotificationID)
		if err != nil {
			return fmt.Errorf("notification id: %w", err)
		}
		subscriptionID, err := uuidValue(e.SubscriptionID)
		if err != nil {
			return fmt.Errorf("subscription id: %w", err)
		}
		rows = append(rows, []any{
			notificationID,
			subscriptionID,
			string(e.Outcome),
			pgtype.Int4{Int32: int32(e.StatusCode), Valid: e.StatusCode != 0},
			pgtype.Text{String: e.Error, Valid: e.Error != ""},
			e.CreatedAt,
		})
	}

	_, err := r.db.CopyFrom(ctx, pgx.Identifier{"delivery_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy delivery events: %w", err)
	}
	return nil
}

// uuidValue converts an optional id; empty yields NULL.
func uuidValue(s string) (pgtype.UUID, error) {
	if s == "" {
		return pgtype.UUID{}, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

// InsertDispatchLog stores the aggregate result of a fan-out.
func (r *Repository) InsertDispatchLog(ctx context.Context, log *domain.DispatchLog) error {
	query := `
		INSERT INTO dispatch_logs (notification_id, site_id, attempted, succeeded, failed, pruned, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		log.NotificationID,
		log.SiteID,
		log.Attempted,
		log.Succeeded,
		log.Failed,
		log.Pruned,
		log.Duration.Milliseconds(),
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dispatch log: %w", err)
	}
	return nil
}

// IncrementOutcome bumps a client-reported counter and appends the event atomically.
func (r *Repository) IncrementOutcome(ctx context.Context, id string, outcome domain.DeliveryOutcome) (bool, error) {
	var column string
	switch outcome {
	case domain.DeliveryOutcomeDelivered:
		column = "delivered_count"
	case domain.DeliveryOutcomeClicked:
		column = "clicked_count"
	default:
		return false, fmt.Errorf("outcome %q has no counter", outcome)
	}

	query := `
		WITH updated AS (
			UPDATE notifications SET ` + column + ` = ` + column + ` + 1
			WHERE id = $1
			RETURNING id
		)
		INSERT INTO delivery_events (notification_id, outcome)
		SELECT id, $2::text FROM updated
	`
	result, err := r.db.Exec(ctx, query, id, string(outcome))
	if err != nil {
		return false, fmt.Errorf("increment %s: %w", column, err)
	}
	return result.RowsAffected() > 0, nil
}

const totalsSelect = `
	SELECT COUNT(*),
		COALESCE(SUM(sent_count), 0),
		COALESCE(SUM(failed_count), 0),
		COALESCE(SUM(delivered_count), 0),
		COALESCE(SUM(clicked_count), 0)
	FROM notifications`

func scanTotals(row pgx.Row) (*ledger.Totals, error) {
	var t ledger.Totals
	if err := row.Scan(&t.Notifications, &t.Sent, &t.Failed, &t.Delivered, &t.Clicked); err != nil {
		return nil, err
	}
	return &t, nil
}

// SiteTotals aggregates counters of one site.
func (r *Repository) SiteTotals(ctx context.Context, siteID string) (*ledger.Totals, error) {
	t, err := scanTotals(r.db.QueryRow(ctx, totalsSelect+` WHERE site_id = $1`, siteID))
	if err != nil {
		return nil, fmt.Errorf("site totals: %w", err)
	}
	return t, nil
}

// GlobalTotals aggregates counters across all sites.
func (r *Repository) GlobalTotals(ctx context.Context) (*ledger.Totals, error) {
	t, err := scanTotals(r.db.QueryRow(ctx, totalsSelect))
	if err != nil {
		return nil, fmt.Errorf("global totals: %w", err)
	}
	return t, nil
}
