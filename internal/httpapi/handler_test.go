package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/infrastructure/memstore"
	"DigestAgent/internal/ports"
	"DigestAgent/internal/usecase"
)

type fakeRefresher struct {
	requested []string
	date      string
}

func (f *fakeRefresher) RequestRefresh(_ context.Context, topics []string, date string) []usecase.RefreshRequestStatus {
	f.requested, f.date = topics, date
	out := make([]usecase.RefreshRequestStatus, 0, len(topics))
	for i, topic := range topics {
		if i == 0 {
			out = append(out, usecase.RefreshRequestStatus{Topic: topic, Status: usecase.StatusRefreshing, Reason: "triggered"})
			continue
		}
		out = append(out, usecase.RefreshRequestStatus{Topic: topic, Status: usecase.StatusSkipped, Reason: "currently_refreshing"})
	}
	return out
}

func (f *fakeRefresher) GetLeaseStatus(_ context.Context, topic, date string) (usecase.LeaseStatus, error) {
	return usecase.LeaseStatus{Topic: topic, Date: date, IsLeased: topic == "AI"}, nil
}

func newTestServer(t *testing.T) (http.Handler, *fakeRefresher, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	refresher := &fakeRefresher{}
	e := NewServer(Deps{
		Refresher: refresher,
		Users:     store,
		News:      store,
		Logs:      store,
		Location:  time.UTC,
		Now:       func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return e, refresher, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTriggerRefreshWithTopics(t *testing.T) {
	h, refresher, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/refresh", `{"topics":["AI","Go"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-03-10", resp.Date)
	assert.Equal(t, 1, resp.RefreshedCount)
	assert.Equal(t, 1, resp.SkippedCount)
	assert.Equal(t, []string{"AI", "Go"}, refresher.requested)
}

func TestTriggerRefreshForUserSubscriptions(t *testing.T) {
	h, refresher, store := newTestServer(t)
	store.PutUser(domain.User{ID: 7, IsActive: true})
	store.AddSubscription(domain.Subscription{UserID: 7, Topic: "财经", IsActive: true})
	store.AddSubscription(domain.Subscription{UserID: 7, Topic: "AI", IsActive: true})
	store.AddSubscription(domain.Subscription{UserID: 7, Topic: "old", IsActive: false})

	rec := do(t, h, http.MethodPost, "/api/refresh", `{"user_id":7,"date":"2025-03-09"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"AI", "财经"}, refresher.requested)
	assert.Equal(t, "2025-03-09", refresher.date)
}

func TestTriggerRefreshRejectsBadInput(t *testing.T) {
	h, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/refresh", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/refresh", `{"topics":["AI"],"date":"10/03/2025"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/refresh", `{"user_id":99}`).Code)
}

func TestRefreshStatus(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/refresh-status?topic=AI&topic=Go&date=2025-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Date   string                `json:"date"`
		Topics []usecase.LeaseStatus `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Topics, 2)
	assert.True(t, resp.Topics[0].IsLeased)
	assert.False(t, resp.Topics[1].IsLeased)
}

func TestStatsAndLogs(t *testing.T) {
	h, _, store := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx ports.NewsTx) error {
		for _, u := range []string{"https://a", "https://b"} {
			if _, err := tx.Create(ctx, domain.CachedNewsItem{Topic: "AI", Date: "2025-03-10", URL: u}); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, store.WriteSystemLog(ctx, domain.SystemLog{Kind: "fetch", Message: "done"}))

	rec := do(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Total   int            `json:"total"`
		ByTopic map[string]int `json:"by_topic"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByTopic["AI"])

	rec = do(t, h, http.MethodGet, "/api/logs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"fetch"`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/logs?limit=-1", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
