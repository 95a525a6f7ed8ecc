package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/infrastructure/memstore"
	"DigestAgent/internal/lease"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type topicFunc func(ctx context.Context, topic, date string) domain.RefreshOutcome

func (f topicFunc) RefreshTopic(ctx context.Context, topic, date string) domain.RefreshOutcome {
	return f(ctx, topic, date)
}

func succeed(_ context.Context, topic, date string) domain.RefreshOutcome {
	return domain.RefreshOutcome{Topic: topic, Date: date, Success: true, ArticlesCreated: 1}
}

func newRefresher(t *testing.T, work TopicRefresher) (*Refresher, *memstore.Store, *clock) {
	t.Helper()
	store := memstore.New()
	clk := &clock{now: fixedNow()}
	leases := lease.NewManager(store, lease.Options{Now: clk.Now}, discardLogger())
	return NewRefresher(leases, work, discardLogger()), store, clk
}

func TestRefreshReleasesAndAdvances(t *testing.T) {
	r, store, clk := newRefresher(t, topicFunc(succeed))
	ctx := context.Background()

	out, err := r.Refresh(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.Skipped)

	l, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, l.IsLeased)
	require.NotNil(t, l.LastRefreshedAt)

	clk.Advance(time.Minute)
	out, err = r.Refresh(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, "recently_refreshed", out.Reason)
	assert.Equal(t, 240, out.RemainingSeconds)
}

func TestRefreshFailureAbandonsWithoutAdvancing(t *testing.T) {
	fail := topicFunc(func(_ context.Context, topic, date string) domain.RefreshOutcome {
		return domain.RefreshOutcome{Topic: topic, Date: date, Error: "fetch: boom"}
	})
	r, store, _ := newRefresher(t, fail)
	ctx := context.Background()

	out, err := r.Refresh(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, out.Success)

	l, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, l.IsLeased)
	assert.Nil(t, l.LastRefreshedAt)

	out, err = r.Refresh(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, out.Skipped, "a failed pass does not block an immediate retry")
}

func TestRefreshRecoversPanicAndClearsLease(t *testing.T) {
	boom := topicFunc(func(context.Context, string, string) domain.RefreshOutcome { panic("kaboom") })
	r, store, _ := newRefresher(t, boom)
	ctx := context.Background()

	out, err := r.Refresh(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "kaboom")

	l, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, l.IsLeased)
	assert.Empty(t, l.LeaseID)
}

func TestConcurrentRefreshRunsOnce(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	runs := 0
	slow := topicFunc(func(ctx context.Context, topic, date string) domain.RefreshOutcome {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
		return succeed(ctx, topic, date)
	})
	r, _, _ := newRefresher(t, slow)

	const callers = 8
	results := make(chan domain.RefreshOutcome, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Refresh(context.Background(), "AI", "2025-03-10")
			assert.NoError(t, err)
			results <- out
		}()
	}

	skipped := 0
	for range callers - 1 {
		out := <-results
		require.True(t, out.Skipped)
		assert.Equal(t, "currently_refreshing", out.Reason)
		skipped++
	}
	close(release)
	wg.Wait()
	close(results)

	last := <-results
	assert.True(t, last.Success)
	assert.Equal(t, callers-1, skipped)
	assert.Equal(t, 1, runs)
}

func TestRequestRefreshDispatchesGrantedTopics(t *testing.T) {
	var mu sync.Mutex
	var done []string
	work := topicFunc(func(ctx context.Context, topic, date string) domain.RefreshOutcome {
		mu.Lock()
		done = append(done, topic)
		mu.Unlock()
		return succeed(ctx, topic, date)
	})
	r, _, clk := newRefresher(t, work)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := r.Refresh(ctx, "Go", "2025-03-10")
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	statuses := r.RequestRefresh(ctx, []string{"AI", "Go", "AI", ""}, "2025-03-10")
	cancel()
	r.Wait()

	require.Len(t, statuses, 2)
	assert.Equal(t, RefreshRequestStatus{Topic: "AI", Status: StatusRefreshing, Reason: "triggered"}, statuses[0])
	assert.Equal(t, RefreshRequestStatus{Topic: "Go", Status: StatusSkipped, Reason: "recently_refreshed", RemainingSeconds: 180}, statuses[1])

	status, err := r.GetLeaseStatus(context.Background(), "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, status.IsLeased)
	require.NotNil(t, status.LastRefreshedAt, "cancelling the request context does not abort the dispatched refresh")
	assert.Equal(t, []string{"Go", "AI"}, done)
}

func TestGetLeaseStatusUnknownTopic(t *testing.T) {
	r, store, _ := newRefresher(t, topicFunc(succeed))

	status, err := r.GetLeaseStatus(context.Background(), "nobody", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, status.IsLeased)
	assert.Nil(t, status.LastRefreshedAt)

	_, err = store.GetLease(context.Background(), "nobody", "2025-03-10")
	assert.ErrorIs(t, err, domain.ErrLeaseNotFound)
}
