package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/push-relay/internal/domain"
)

// memRepository implements Repository in memory for testing.
// InSiteTx serializes work the way the per-site advisory lock does.
type memRepository struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	rows   map[string]*domain.Subscription
	nextID int
}

func newMemRepository() *memRepository {
	return &memRepository{rows: make(map[string]*domain.Subscription)}
}

func (m *memRepository) InSiteTx(ctx context.Context, _ string, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}

func (m *memRepository) GetByFingerprint(_ context.Context, siteID, fingerprint string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.SiteID == siteID && s.Fingerprint == fingerprint {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *memRepository) Insert(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.SiteID == sub.SiteID && s.Fingerprint == sub.Fingerprint {
			return fmt.Errorf("duplicate key (site_id, fingerprint)")
		}
	}
	m.nextID++
	sub.ID = fmt.Sprintf("sub-%d", m.nextID)
	sub.CreatedAt = sub.LastSeen
	sub.IsActive = true
	cp := *sub
	m.rows[sub.ID] = &cp
	return nil
}

func (m *memRepository) Refresh(_ context.Context, id string, payload json.RawMessage, userAgent string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.Payload = payload
	s.UserAgent = userAgent
	s.LastSeen = seenAt
	s.IsActive = true
	return nil
}

func (m *memRepository) Touch(_ context.Context, siteID, fingerprint string, seenAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.SiteID == siteID && s.Fingerprint == fingerprint {
			s.LastSeen = seenAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepository) Deactivate(_ context.Context, siteID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.SiteID == siteID && s.Fingerprint == fingerprint {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memRepository) DeactivateByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memRepository) ListActive(_ context.Context, siteID string, ids []string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	result := make([]domain.Subscription, 0)
	for _, s := range m.rows {
		if s.SiteID != siteID || !s.IsActive {
			continue
		}
		if len(ids) > 0 && !wanted[s.ID] {
			continue
		}
		result = append(result, *s)
	}
	return result, nil
}

func (m *memRepository) CountActive(_ context.Context, siteID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.rows {
		if s.SiteID == siteID && s.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *memRepository) DeactivateStale(_ context.Context, before time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.rows {
		if int(n) >= limit {
			break
		}
		if s.IsActive && s.LastSeen.Before(before) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memRepository) rowsFor(siteID string) []domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Subscription, 0)
	for _, s := range m.rows {
		if s.SiteID == siteID {
			result = append(result, *s)
		}
	}
	return result
}

func subscriptionJSON(endpoint string) []byte {
	return []byte(fmt.Sprintf(`{"endpoint":%q,"expirationTime":null,"keys":{"p256dh":"BNc","auth":"tBH"}}`, endpoint))
}
