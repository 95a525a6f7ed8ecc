package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
}

type staticSource struct {
	mu       sync.Mutex
	articles []domain.Article
	err      error
	calls    int
}

func (s *staticSource) Fetch(context.Context, string, int) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return append([]domain.Article(nil), s.articles...), s.err
}

type mockEnrichment struct {
	mock.Mock
}

var _ ports.Enrichment = (*mockEnrichment)(nil)

func (m *mockEnrichment) Summarize(ctx context.Context, title, content string, tone domain.Tone) string {
	args := m.Called(ctx, title, content, tone)
	return args.String(0)
}

func (m *mockEnrichment) Score(ctx context.Context, topic, title, content string) float64 {
	args := m.Called(ctx, topic, title, content)
	return args.Get(0).(float64)
}

func newMockEnrichment() *mockEnrichment {
	m := &mockEnrichment{}
	m.On("Summarize", mock.Anything, mock.Anything, mock.Anything, domain.ToneNeutral).Return("neutral")
	m.On("Summarize", mock.Anything, mock.Anything, mock.Anything, domain.ToneAlternate).Return("alternate")
	m.On("Score", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0.9)
	return m
}

func articles(urls ...string) []domain.Article {
	out := make([]domain.Article, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.Article{Title: "title " + u, URL: u, Source: "test", Content: "content " + u})
	}
	return out
}
