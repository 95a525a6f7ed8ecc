package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/metrics"
	"DigestAgent/internal/ports"
	"DigestAgent/internal/scanner"
)

// DefaultOrder is the provider priority: keyword APIs first, feeds last.
var DefaultOrder = []string{"gnews", "newsdata", "feeds"}

// StrategySource implements ArticleSource as a priority chain of registered providers.
// The first provider returning articles wins; failures and empty results fall through.
type StrategySource struct {
	chain  []scanner.Provider
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource resolves order against the registry. Unregistered names are skipped.
func NewStrategySource(reg *scanner.Registry, order []string, log *slog.Logger) *StrategySource {
	if len(order) == 0 {
		order = DefaultOrder
	}
	if log == nil {
		log = slog.Default()
	}
	return &StrategySource{
		chain:  reg.Chain(order),
		now:    time.Now,
		logger: log,
	}
}

// Fetch never fails because of a provider. When every provider comes back empty it
// returns exactly one placeholder article. The only error is ctx cancellation.
func (s *StrategySource) Fetch(ctx context.Context, topic string, maxArticles int) ([]domain.Article, error) {
	s.logger.Debug("fetch topic", "topic", topic, "providers", len(s.chain), "max", maxArticles)

	for _, provider := range s.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		articles, err := s.attempt(ctx, provider, topic, maxArticles)
		switch {
		case err != nil:
			metrics.RecordProviderFetch(provider.Name(), "error")
			s.logger.Warn("provider failed", "provider", provider.Name(), "topic", topic, "error", err)
			continue
		case len(articles) == 0:
			metrics.RecordProviderFetch(provider.Name(), "empty")
			s.logger.Debug("provider returned nothing", "provider", provider.Name(), "topic", topic)
			continue
		}

		metrics.RecordProviderFetch(provider.Name(), "ok")
		if len(articles) > maxArticles {
			articles = articles[:maxArticles]
		}
		s.logger.Info("provider produced articles", "provider", provider.Name(), "topic", topic, "count", len(articles))
		return articles, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Warn("no articles from any provider, using placeholder", "topic", topic)
	return []domain.Article{domain.PlaceholderArticle(topic, s.now())}, nil
}

func (s *StrategySource) attempt(ctx context.Context, provider scanner.Provider, topic string, maxArticles int) (articles []domain.Article, err error) {
	if bounded, ok := provider.(scanner.TimeBounded); ok && bounded.AttemptTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bounded.AttemptTimeout())
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			articles = nil
			err = fmt.Errorf("provider %s panicked: %v", provider.Name(), r)
		}
	}()

	return provider.Fetch(ctx, topic, maxArticles)
}
