package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

type stubEnricher struct {
	summary  string
	score    float64
	err      error
	panicMsg string
}

func (s stubEnricher) Summarize(context.Context, string, string, domain.Tone) (string, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.summary, s.err
}

func (s stubEnricher) Score(context.Context, string, string, string) (float64, error) {
	return s.score, s.err
}

func TestFallbackSummary(t *testing.T) {
	long := strings.Repeat("长", 150)

	assert.Equal(t, strings.Repeat("长", 100)+"...", FallbackSummary("t", long, domain.ToneNeutral))
	assert.Equal(t, "short", FallbackSummary("t", "short", domain.ToneNeutral))
	assert.Equal(t, "title only", FallbackSummary("title only", "", domain.ToneNeutral))
	assert.Equal(t, "📰 short （AI摘要暂时不可用）", FallbackSummary("t", "short", domain.ToneAlternate))
}

func TestEnrichmentServiceFallsBackOnErrors(t *testing.T) {
	svc := NewEnrichmentService(func() (ports.Enricher, error) {
		return stubEnricher{err: errors.New("provider down")}, nil
	}, discardLogger())

	ctx := context.Background()
	assert.Equal(t, "content", svc.Summarize(ctx, "title", "content", domain.ToneNeutral))
	assert.Equal(t, domain.DefaultRelevance, svc.Score(ctx, "AI", "title", "content"))
}

func TestEnrichmentServiceClampsAndRecovers(t *testing.T) {
	ctx := context.Background()

	high := NewEnrichmentService(func() (ports.Enricher, error) { return stubEnricher{summary: " ok ", score: 1.4}, nil }, discardLogger())
	assert.Equal(t, 1.0, high.Score(ctx, "AI", "t", "c"))
	assert.Equal(t, "ok", high.Summarize(ctx, "t", "c", domain.ToneNeutral))

	nan := NewEnrichmentService(func() (ports.Enricher, error) { return stubEnricher{score: math.NaN()}, nil }, discardLogger())
	assert.Equal(t, domain.DefaultRelevance, nan.Score(ctx, "AI", "t", "c"))

	empty := NewEnrichmentService(func() (ports.Enricher, error) { return stubEnricher{summary: "  "}, nil }, discardLogger())
	assert.Equal(t, "c", empty.Summarize(ctx, "t", "c", domain.ToneNeutral))

	panicky := NewEnrichmentService(func() (ports.Enricher, error) { return stubEnricher{panicMsg: "boom"}, nil }, discardLogger())
	assert.Equal(t, "📰 c （AI摘要暂时不可用）", panicky.Summarize(ctx, "t", "c", domain.ToneAlternate))
}

func TestEnrichmentServiceBuildsBackendOnce(t *testing.T) {
	var builds atomic.Int32
	svc := NewEnrichmentService(func() (ports.Enricher, error) {
		builds.Add(1)
		return stubEnricher{summary: "s", score: 0.2}, nil
	}, discardLogger())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Score(context.Background(), "AI", "t", "c")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), builds.Load())
}

func TestEnrichmentServiceWithoutBackend(t *testing.T) {
	failing := NewEnrichmentService(func() (ports.Enricher, error) { return nil, errors.New("no key") }, discardLogger())
	assert.Equal(t, "c", failing.Summarize(context.Background(), "t", "c", domain.ToneNeutral))

	none := NewEnrichmentService(nil, discardLogger())
	assert.Equal(t, domain.DefaultRelevance, none.Score(context.Background(), "AI", "t", "c"))
}
