package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(repo Repository, now *time.Time) *Registry {
	r := NewRegistry(repo)
	r.now = func() time.Time { return *now }
	return r
}

func testSite(quota int) *domain.Site {
	return &domain.Site{
		ID:              "site-1",
		Token:           "01j9z3n4q5r6s7t8v9w0x1y2z3",
		Status:          domain.SiteStatusActive,
		SubscriberQuota: quota,
	}
}

func TestRegistry_Upsert_Idempotent(t *testing.T) {
	repo := newMemRepository()
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := t1
	registry := newTestRegistry(repo, &now)
	site := testSite(0)
	raw := subscriptionJSON("https://push.example.com/sub/1")

	id1, err := registry.Upsert(context.Background(), site, raw, "Firefox")
	require.NoError(t, err)

	now = t1.Add(time.Hour)
	id2, err := registry.Upsert(context.Background(), site, raw, "Firefox")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	rows := repo.rowsFor(site.ID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsActive)
	assert.Equal(t, t1, rows[0].CreatedAt)
	assert.Equal(t, t1.Add(time.Hour), rows[0].LastSeen)
	assert.Equal(t, Fingerprint("https://push.example.com/sub/1"), rows[0].Fingerprint)
}

func TestRegistry_Upsert_UpdatesPayload(t *testing.T) {
	repo := newMemRepository()
	now := time.Now()
	registry := newTestRegistry(repo, &now)
	site := testSite(0)

	_, err := registry.Upsert(context.Background(), site, subscriptionJSON("https://push.example.com/sub/1"), "")
	require.NoError(t, err)

	updated := []byte(`{"endpoint":"https://push.example.com/sub/1","keys":{"p256dh":"NEW","auth":"NEW"}}`)
	_, err = registry.Upsert(context.Background(), site, updated, "Chrome")
	require.NoError(t, err)

	rows := repo.rowsFor(site.ID)
	require.Len(t, rows, 1)
	assert.JSONEq(t, string(updated), string(rows[0].Payload))
	assert.Equal(t, "Chrome", rows[0].UserAgent)
}

func TestRegistry_Upsert_ClampsUserAgent(t *testing.T) {
	repo := newMemRepository()
	now := time.Now()
	registry := newTestRegistry(repo, &now)
	site := testSite(0)

	ua := "Mozilla/5.0 " + strings.Repeat("é", 600)
	_, err := registry.Upsert(context.Background(), site, subscriptionJSON("https://push.example.com/sub/ua"), ua)
	require.NoError(t, err)

	rows := repo.rowsFor(site.ID)
	require.Len(t, rows, 1)
	stored := rows[0].UserAgent
	assert.LessOrEqual(t, len(stored), MaxUserAgentBytes)
	assert.Greater(t, len(stored), MaxUserAgentBytes-utf8.UTFMax)
	assert.True(t, utf8.ValidString(stored))
	assert.True(t, strings.HasPrefix(ua, stored))
}

func TestClampUserAgent(t *testing.T) {
	assert.Equal(t, "Firefox", clampUserAgent("Firefox"))
	assert.Len(t, clampUserAgent(strings.Repeat("a", 2000)), MaxUserAgentBytes)
}

func TestRegistry_Upsert_InvalidPayload(t *testing.T) {
	repo := newMemRepository()
	registry := NewRegistry(repo)

	_, err := registry.Upsert(context.Background(), testSite(0), []byte(`{"keys":{}}`), "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Empty(t, repo.rowsFor("site-1"))
}

func TestRegistry_Upsert_QuotaExceeded(t *testing.T) {
	repo := newMemRepository()
	registry := NewRegistry(repo)
	site := testSite(20)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := registry.Upsert(ctx, site, subscriptionJSON(fmt.Sprintf("https://push.example.com/sub/%d", i)), "")
		require.NoError(t, err)
	}

	_, err := registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/sub/new"), "")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	count, err := registry.CountActive(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, count)

	// refreshing an existing active subscription does not count against the quota
	_, err = registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/sub/3"), "")
	assert.NoError(t, err)
}

func TestRegistry_Upsert_ReactivationRespectsQuota(t *testing.T) {
	repo := newMemRepository()
	registry := NewRegistry(repo)
	site := testSite(1)
	ctx := context.Background()

	_, err := registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/a"), "")
	require.NoError(t, err)
	require.NoError(t, registry.Deactivate(ctx, site, "https://push.example.com/a"))

	_, err = registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/b"), "")
	require.NoError(t, err)

	_, err = registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/a"), "")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	count, err := registry.CountActive(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistry_Upsert_ConcurrentQuota(t *testing.T) {
	repo := newMemRepository()
	registry := NewRegistry(repo)
	site := testSite(10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = registry.Upsert(ctx, site, subscriptionJSON(fmt.Sprintf("https://push.example.com/c/%d", i)), "")
		}(i)
	}
	wg.Wait()

	count, err := registry.CountActive(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestRegistry_Heartbeat(t *testing.T) {
	endpoint := "https://push.example.com/hb"
	t1 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("refreshes last seen", func(t *testing.T) {
		repo := newMemRepository()
		now := t1
		registry := newTestRegistry(repo, &now)
		site := testSite(0)

		_, err := registry.Upsert(context.Background(), site, subscriptionJSON(endpoint), "")
		require.NoError(t, err)

		now = t1.Add(30 * time.Minute)
		require.NoError(t, registry.Heartbeat(context.Background(), site, Fingerprint(endpoint), false))

		rows := repo.rowsFor(site.ID)
		require.Len(t, rows, 1)
		assert.Equal(t, t1.Add(30*time.Minute), rows[0].LastSeen)
	})

	t.Run("unknown subscription is a no-op", func(t *testing.T) {
		repo := newMemRepository()
		registry := NewRegistry(repo)

		assert.NoError(t, registry.Heartbeat(context.Background(), testSite(0), "https://push.example.com/unknown", false))
		assert.NoError(t, registry.Heartbeat(context.Background(), testSite(0), "https://push.example.com/unknown", true))
		assert.Empty(t, repo.rowsFor("site-1"))
	})

	t.Run("malformed reference", func(t *testing.T) {
		registry := NewRegistry(newMemRepository())
		err := registry.Heartbeat(context.Background(), testSite(0), "not a reference", false)
		assert.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("without reactivate stays inactive", func(t *testing.T) {
		repo := newMemRepository()
		registry := NewRegistry(repo)
		site := testSite(0)
		ctx := context.Background()

		_, err := registry.Upsert(ctx, site, subscriptionJSON(endpoint), "")
		require.NoError(t, err)
		require.NoError(t, registry.Deactivate(ctx, site, endpoint))

		require.NoError(t, registry.Heartbeat(ctx, site, endpoint, false))
		assert.False(t, repo.rowsFor(site.ID)[0].IsActive)
	})

	t.Run("reactivate revives pruned subscription", func(t *testing.T) {
		repo := newMemRepository()
		registry := NewRegistry(repo)
		site := testSite(5)
		ctx := context.Background()

		_, err := registry.Upsert(ctx, site, subscriptionJSON(endpoint), "Safari")
		require.NoError(t, err)
		require.NoError(t, registry.Deactivate(ctx, site, endpoint))

		require.NoError(t, registry.Heartbeat(ctx, site, endpoint, true))
		rows := repo.rowsFor(site.ID)
		assert.True(t, rows[0].IsActive)
		assert.Equal(t, "Safari", rows[0].UserAgent)
	})

	t.Run("reactivate over quota only touches", func(t *testing.T) {
		repo := newMemRepository()
		now := t1
		registry := newTestRegistry(repo, &now)
		site := testSite(1)
		ctx := context.Background()

		_, err := registry.Upsert(ctx, site, subscriptionJSON(endpoint), "")
		require.NoError(t, err)
		require.NoError(t, registry.Deactivate(ctx, site, endpoint))
		_, err = registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/other"), "")
		require.NoError(t, err)

		now = t1.Add(time.Hour)
		require.NoError(t, registry.Heartbeat(ctx, site, endpoint, true))

		sub, err := repo.GetByFingerprint(ctx, site.ID, Fingerprint(endpoint))
		require.NoError(t, err)
		assert.False(t, sub.IsActive)
		assert.Equal(t, t1.Add(time.Hour), sub.LastSeen)
	})
}

func TestRegistry_Deactivate_Idempotent(t *testing.T) {
	repo := newMemRepository()
	registry := NewRegistry(repo)
	site := testSite(0)
	ctx := context.Background()
	endpoint := "https://push.example.com/gone"

	_, err := registry.Upsert(ctx, site, subscriptionJSON(endpoint), "")
	require.NoError(t, err)

	require.NoError(t, registry.Deactivate(ctx, site, endpoint))
	require.NoError(t, registry.Deactivate(ctx, site, endpoint))
	require.NoError(t, registry.Deactivate(ctx, site, "https://push.example.com/never-seen"))

	count, err := registry.CountActive(ctx, site.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegistry_ListActive_Subset(t *testing.T) {
	repo := newMemRepository()
	registry := NewRegistry(repo)
	site := testSite(0)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := registry.Upsert(ctx, site, subscriptionJSON(fmt.Sprintf("https://push.example.com/l/%d", i)), "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, registry.DeactivateByID(ctx, ids[1]))

	all, err := registry.ListActive(ctx, site.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	subset, err := registry.ListActive(ctx, site.ID, []string{ids[0], ids[1]})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	assert.Equal(t, ids[0], subset[0].ID)
}

func TestRegistry_DeactivateStale(t *testing.T) {
	repo := newMemRepository()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := t1
	registry := newTestRegistry(repo, &now)
	site := testSite(0)
	ctx := context.Background()

	_, err := registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/old"), "")
	require.NoError(t, err)
	now = t1.Add(48 * time.Hour)
	_, err = registry.Upsert(ctx, site, subscriptionJSON("https://push.example.com/fresh"), "")
	require.NoError(t, err)

	n, err := registry.DeactivateStale(ctx, t1.Add(24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := registry.CountActive(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
