package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/metrics"
	"DigestAgent/internal/ports"
)

const fallbackSummaryRunes = 100

// EnricherFactory builds the enrichment backend on first use. Returning (nil, nil)
// means no backend is configured and every call uses the fallbacks.
type EnricherFactory func() (ports.Enricher, error)

// EnrichmentService wraps a raw backend so that callers never see an error.
type EnrichmentService struct {
	factory EnricherFactory
	logger  *slog.Logger

	once    sync.Once
	backend ports.Enricher
}

var _ ports.Enrichment = (*EnrichmentService)(nil)

// NewEnrichmentService defers backend construction until the first call.
func NewEnrichmentService(factory EnricherFactory, logger *slog.Logger) *EnrichmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichmentService{factory: factory, logger: logger}
}

func (s *EnrichmentService) resolve() ports.Enricher {
	s.once.Do(func() {
		if s.factory == nil {
			return
		}
		backend, err := s.factory()
		if err != nil {
			s.logger.Error("enrichment backend unavailable, using fallbacks", "error", err)
			return
		}
		s.backend = backend
	})
	return s.backend
}

// Summarize returns a backend summary, or a truncation of the article when the backend fails.
func (s *EnrichmentService) Summarize(ctx context.Context, title, content string, tone domain.Tone) (summary string) {
	operation := "summarize_" + string(tone)
	backend := s.resolve()
	if backend == nil {
		metrics.RecordEnrichment(operation, "fallback")
		return FallbackSummary(title, content, tone)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("summarize panicked", "title", title, "panic", r)
			metrics.RecordEnrichment(operation, "fallback")
			summary = FallbackSummary(title, content, tone)
		}
	}()

	out, err := backend.Summarize(ctx, title, content, tone)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err == nil {
			err = fmt.Errorf("empty summary")
		}
		s.logger.Warn("summarize failed, using fallback", "title", title, "tone", tone, "error", err)
		metrics.RecordEnrichment(operation, "fallback")
		return FallbackSummary(title, content, tone)
	}

	metrics.RecordEnrichment(operation, "ok")
	return out
}

// Score returns a relevance score in [0,1]; failures yield domain.DefaultRelevance.
func (s *EnrichmentService) Score(ctx context.Context, topic, title, content string) (score float64) {
	backend := s.resolve()
	if backend == nil {
		metrics.RecordEnrichment("score", "fallback")
		return domain.DefaultRelevance
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("score panicked", "title", title, "panic", r)
			metrics.RecordEnrichment("score", "fallback")
			score = domain.DefaultRelevance
		}
	}()

	value, err := backend.Score(ctx, topic, title, content)
	if err != nil || math.IsNaN(value) {
		s.logger.Warn("score failed, using default", "topic", topic, "title", title, "error", err)
		metrics.RecordEnrichment("score", "fallback")
		return domain.DefaultRelevance
	}

	metrics.RecordEnrichment("score", "ok")
	return domain.ClampScore(value)
}

// FallbackSummary is the deterministic summary used when no backend answer is available.
func FallbackSummary(title, content string, tone domain.Tone) string {
	summary := title
	if content != "" {
		summary = content
		if len([]rune(content)) > fallbackSummaryRunes {
			summary = domain.TruncateRunes(content, fallbackSummaryRunes) + "..."
		}
	}

	if tone == domain.ToneAlternate {
		return fmt.Sprintf("📰 %s （AI摘要暂时不可用）", summary)
	}
	return summary
}
