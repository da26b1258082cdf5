// Package postgres provides PostgreSQL implementation of the subscription registry.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	store
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		store: store{q: db},
		db:    db,
	}
}

// InSiteTx runs fn in a transaction holding a transaction-scoped advisory lock for the site.
func (r *Repository) InSiteTx(ctx context.Context, siteID string, fn func(ctx context.Context, tx subscriptions.Store) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('subscriptions:' || $1::text, 0))`, siteID); err != nil {
		return fmt.Errorf("lock site subscriptions: %w", err)
	}

	if err := fn(ctx, &store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type store struct {
	q querier
}

const subscriptionColumns = `id, site_id, fingerprint, payload, user_agent, is_active, created_at, last_seen`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var payload []byte
	err := row.Scan(
		&sub.ID,
		&sub.SiteID,
		&sub.Fingerprint,
		&payload,
		&sub.UserAgent,
		&sub.IsActive,
		&sub.CreatedAt,
		&sub.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	sub.Payload = json.RawMessage(payload)
	return &sub, nil
}

// GetByFingerprint retrieves a subscription by its site-scoped fingerprint.
func (s *store) GetByFingerprint(ctx context.Context, siteID, fingerprint string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE site_id = $1 AND fingerprint = $2`
	sub, err := scanSubscription(s.q.QueryRow(ctx, query, siteID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Insert creates a new subscription.
func (s *store) Insert(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (site_id, fingerprint, payload, user_agent, is_active, last_seen)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING id, created_at
	`
	err := s.q.QueryRow(ctx, query,
		sub.SiteID,
		sub.Fingerprint,
		[]byte(sub.Payload),
		sub.UserAgent,
		sub.LastSeen,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	sub.IsActive = true
	return nil
}

// Refresh updates payload, user agent and last_seen, and activates the subscription.
func (s *store) Refresh(ctx context.Context, id string, payload json.RawMessage, userAgent string, seenAt time.Time) error {
	query := `
		UPDATE subscriptions
		SET payload = $2, user_agent = $3, last_seen = $4, is_active = true
		WHERE id = $1
	`
	result, err := s.q.Exec(ctx, query, id, []byte(payload), userAgent, seenAt)
	if err != nil {
		return fmt.Errorf("refresh subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}

// Touch updates last_seen only.
func (s *store) Touch(ctx context.Context, siteID, fingerprint string, seenAt time.Time) (bool, error) {
	result, err := s.q.Exec(ctx,
		`UPDATE subscriptions SET last_seen = $3 WHERE site_id = $1 AND fingerprint = $2`,
		siteID, fingerprint, seenAt,
	)
	if err != nil {
		return false, fmt.Errorf("touch subscription: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Deactivate marks a subscription inactive by fingerprint.
func (s *store) Deactivate(ctx context.Context, siteID, fingerprint string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE subscriptions SET is_active = false WHERE site_id = $1 AND fingerprint = $2 AND is_active`,
		siteID, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return nil
}

// DeactivateByID marks a subscription inactive by id.
func (s *store) DeactivateByID(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `UPDATE subscriptions SET is_active = false WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return nil
}

// ListActive lists active subscriptions for a site.
func (s *store) ListActive(ctx context.Context, siteID string, ids []string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE site_id = $1 AND is_active`
	args := []any{siteID}
	if len(ids) > 0 {
		query += ` AND id = ANY($2::uuid[])`
		args = append(args, ids)
	}
	query += ` ORDER BY created_at`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}

// CountActive counts active subscriptions for a site.
func (s *store) CountActive(ctx context.Context, siteID string) (int, error) {
	var count int
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE site_id = $1 AND is_active`,
		siteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active subscriptions: %w", err)
	}
	return count, nil
}

// DeactivateStale deactivates the oldest active subscriptions not seen since before.
func (s *store) DeactivateStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	query := `
		UPDATE subscriptions SET is_active = false
		WHERE id IN (
			SELECT id FROM subscriptions
			WHERE is_active AND last_seen < $1
			ORDER BY last_seen
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`
	result, err := s.q.Exec(ctx, query, before, limit)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale subscriptions: %w", err)
	}
	return result.RowsAffected(), nil
}
