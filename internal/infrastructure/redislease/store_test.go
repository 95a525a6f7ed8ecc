package redislease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/lease"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestGetLeaseMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetLease(context.Background(), "AI", "2025-03-10")
	assert.ErrorIs(t, err, domain.ErrLeaseNotFound)
}

func TestUpdateLeaseRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	refreshed := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	_, err := store.UpdateLease(ctx, "AI", "2025-03-10", func(l *domain.RefreshLease) error {
		l.IsLeased = true
		l.LeaseID = "abc"
		l.LastRefreshedAt = &refreshed
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "1", mr.HGet("digest:lease:AI:2025-03-10", "is_leased"))

	loaded, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.True(t, loaded.IsLeased)
	assert.Equal(t, "abc", loaded.LeaseID)
	require.NotNil(t, loaded.LastRefreshedAt)
	assert.True(t, loaded.LastRefreshedAt.Equal(refreshed))
	assert.Nil(t, loaded.LeasedAt)
}

func TestUpdateLeaseErrorCreatesIdleRow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := store.UpdateLease(ctx, "AI", "2025-03-10", func(l *domain.RefreshLease) error {
		l.IsLeased = true
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := store.GetLease(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, loaded.IsLeased)
}

func TestManagerOverRedisSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	manager := lease.NewManager(store, lease.Options{}, nil)

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, _, err := manager.TryAcquire(context.Background(), "AI", "2025-03-10")
			if !assert.NoError(t, err) {
				return
			}
			if out.Acquired() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, acquired)
}
