package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "oracle", "")
	assert.Error(t, err)
}

func TestUpdateLeaseCreatesAndPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetLease(ctx, "AI", "2025-03-10")
	assert.ErrorIs(t, err, domain.ErrLeaseNotFound)

	refreshed := time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)
	updated, err := store.UpdateLease(ctx, "AI", "2025-03-10", func(l *domain.RefreshLease) error {
		assert.False(t, l.IsLeased)
		l.IsLeased = true
		l.LeaseID = "lease-1"
		l.LastRefreshedAt = &refreshed
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsLeased)

	loaded, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.True(t, loaded.IsLeased)
	assert.Equal(t, "lease-1", loaded.LeaseID)
	require.NotNil(t, loaded.LastRefreshedAt)
	assert.True(t, loaded.LastRefreshedAt.Equal(refreshed))
	assert.Nil(t, loaded.LeasedAt)
}

func TestUpdateLeaseErrorKeepsRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	boom := errors.New("boom")
	_, err := store.UpdateLease(ctx, "AI", "2025-03-10", func(l *domain.RefreshLease) error {
		l.IsLeased = true
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err, "the idle row is still created")
	assert.False(t, loaded.IsLeased)
}

func TestUpdateLeaseSerializesWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateLease(ctx, "AI", "2025-03-10", func(l *domain.RefreshLease) error {
				if l.IsLeased {
					return errors.New("held")
				}
				l.IsLeased = true
				l.LeaseID = "x"
				mu.Lock()
				winners++
				mu.Unlock()
				return nil
			})
			_ = err
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestNewsIdentityAndDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	fetched := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	feedItem := domain.CachedNewsItem{
		Topic: "AI", Title: "feed", URL: "https://a.example/1", Date: "2025-03-10",
		FetchedAt: fetched, RelevanceScore: 0.7, EntryID: "hash-1", FeedOrigin: "https://a.example/rss",
	}
	apiItem := domain.CachedNewsItem{
		Topic: "AI", Title: "api", URL: "https://b.example/2", Date: "2025-03-10",
		FetchedAt: fetched.Add(time.Minute), RelevanceScore: 0.9,
	}

	err := store.WithinTx(ctx, func(tx ports.NewsTx) error {
		id, err := tx.Create(ctx, feedItem)
		require.NoError(t, err)
		assert.Positive(t, id)
		_, err = tx.Create(ctx, apiItem)
		return err
	})
	require.NoError(t, err)

	exists, err := store.Exists(ctx, domain.Identity{EntryID: "hash-1"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, domain.Identity{Topic: "AI", Date: "2025-03-10", URL: "https://b.example/2"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, domain.Identity{Topic: "AI", Date: "2025-03-11", URL: "https://b.example/2"})
	require.NoError(t, err)
	assert.False(t, exists)

	err = store.WithinTx(ctx, func(tx ports.NewsTx) error {
		_, err := tx.Create(ctx, feedItem)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateItem)

	items, err := store.ListForDigest(ctx, "AI", "2025-03-10", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "api", items[0].Title)
	assert.Equal(t, "hash-1", items[1].EntryID)
	assert.True(t, items[1].FetchedAt.Equal(fetched))

	counts, err := store.CountByTopic(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"AI": 2}, counts)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx ports.NewsTx) error {
		_, err := tx.Create(ctx, domain.CachedNewsItem{
			Topic: "AI", Title: "t", URL: "https://c.example", Date: "2025-03-10", FetchedAt: time.Now(),
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := store.Exists(ctx, domain.Identity{Topic: "AI", Date: "2025-03-10", URL: "https://c.example"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	alice, err := store.CreateUser(ctx, domain.User{
		Email: "alice@example.com", IsActive: true, NotificationsEnabled: true,
		Schedule: domain.ScheduleConfig{Enabled: true, Kind: domain.ScheduleDaily, Hour: 9, Timezone: "Asia/Shanghai"},
	})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, domain.User{Email: "bob@example.com", IsActive: false, NotificationsEnabled: true})
	require.NoError(t, err)

	_, err = store.AddSubscription(ctx, domain.Subscription{UserID: alice.ID, Topic: "AI", IsActive: true})
	require.NoError(t, err)
	_, err = store.AddSubscription(ctx, domain.Subscription{UserID: alice.ID, Topic: "财经", AlternateTone: true, IsActive: true})
	require.NoError(t, err)
	_, err = store.AddSubscription(ctx, domain.Subscription{UserID: bob.ID, Topic: "体育", IsActive: true})
	require.NoError(t, err)
	_, err = store.AddCustomFeed(ctx, domain.CustomFeed{UserID: alice.ID, Topic: "Go", FeedURL: "https://go.dev/blog/feed.atom", IsActive: true})
	require.NoError(t, err)

	topics, err := store.ActiveTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AI", "Go", "财经"}, topics)

	users, err := store.NotifiableUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Asia/Shanghai", users[0].Schedule.Timezone)
	assert.Nil(t, users[0].Schedule.LastSentAt)

	subs, err := store.ActiveSubscriptions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.True(t, subs[1].AlternateTone)

	feeds, err := store.CustomFeedsForTopic(ctx, "Go")
	require.NoError(t, err)
	require.Len(t, feeds, 1)

	sentAt := time.Date(2025, 3, 10, 1, 5, 0, 0, time.UTC)
	require.NoError(t, store.MarkDigestSent(ctx, alice.ID, sentAt))
	reloaded, err := store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Schedule.LastSentAt)
	assert.True(t, reloaded.Schedule.LastSentAt.Equal(sentAt))

	_, err = store.GetUser(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, store.MarkDigestSent(ctx, 999, sentAt), domain.ErrUserNotFound)
}

func TestSystemLogRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.WriteSystemLog(ctx, domain.SystemLog{
		Kind: "fetch", Message: "ingestion sweep", Metadata: map[string]any{"refreshed": 3},
	}))

	logs, err := store.RecentSystemLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "fetch", logs[0].Kind)
	assert.EqualValues(t, 3, logs[0].Metadata["refreshed"])
}

func TestParseTimeAcceptsZonelessAsUTC(t *testing.T) {
	want := time.Date(2025, 3, 10, 9, 6, 0, 123456000, time.UTC)

	for _, value := range []string{
		"2025-03-10 09:06:00.123456",
		"2025-03-10T09:06:00.123456",
		"2025-03-10T09:06:00.123456Z",
		"2025-03-10T17:06:00.123456+08:00",
	} {
		got, err := parseTime(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), "%s parsed as %s", value, got)
	}

	got, err := parseTime("2025-03-10 09:06:00")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}

func TestGetLeaseReadsZonelessRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO refresh_leases (topic, date, is_leased, lease_id, last_refreshed_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"AI", "2025-03-10", false, "", "2025-03-10 09:06:00.123456", "2025-03-10 08:00:00")
	require.NoError(t, err)

	lease, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, lease.LastRefreshedAt)
	assert.True(t, time.Date(2025, 3, 10, 9, 6, 0, 123456000, time.UTC).Equal(*lease.LastRefreshedAt))
}
