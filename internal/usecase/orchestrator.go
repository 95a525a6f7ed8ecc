package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/metrics"
	"DigestAgent/internal/ports"
)

// MaxArticlesPerTopic caps one refresh pass.
const MaxArticlesPerTopic = 16

type articleResult string

const (
	articleCreated articleResult = "created"
	articleSkipped articleResult = "skipped"
	articleFailed  articleResult = "failed"
)

// OrchestratorDeps wires the driven adapters into the refresh pipeline.
type OrchestratorDeps struct {
	Source     ports.ArticleSource
	News       ports.NewsRepository
	Enrichment ports.Enrichment
	Now        func() time.Time
	Logger     *slog.Logger
}

// Orchestrator runs fetch, dedup, enrichment and persistence for one topic.
// It assumes the caller holds the topic's lease.
type Orchestrator struct {
	source     ports.ArticleSource
	news       ports.NewsRepository
	enrichment ports.Enrichment
	now        func() time.Time
	logger     *slog.Logger
}

// NewOrchestrator constructs the refresh pipeline.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		source:     deps.Source,
		news:       deps.News,
		enrichment: deps.Enrichment,
		now:        deps.Now,
		logger:     deps.Logger,
	}
}

// RefreshTopic ingests new articles for (topic, date). Articles are processed one at a time
// and each is committed on its own, so a failing article never discards earlier ones.
func (o *Orchestrator) RefreshTopic(ctx context.Context, topic, date string) domain.RefreshOutcome {
	outcome := domain.RefreshOutcome{Topic: topic, Date: date}

	articles, err := o.source.Fetch(ctx, topic, MaxArticlesPerTopic)
	if err != nil {
		o.logger.Error("fetch failed", "topic", topic, "date", date, "error", err)
		outcome.Error = fmt.Sprintf("fetch: %v", err)
		return outcome
	}

	articles = Dedup(articles)
	if len(articles) > MaxArticlesPerTopic {
		articles = articles[:MaxArticlesPerTopic]
	}

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			outcome.Error = fmt.Sprintf("interrupted: %v", err)
			return outcome
		}

		result, err := o.ingest(ctx, topic, date, article)
		metrics.RecordArticle(string(result))
		switch result {
		case articleCreated:
			outcome.ArticlesCreated++
		case articleSkipped:
			outcome.ArticlesSkipped++
		default:
			outcome.ArticlesFailed++
			o.logger.Error("article ingestion failed", "topic", topic, "title", article.Title, "error", err)
		}
	}

	outcome.Success = true
	o.logger.Info("topic refreshed",
		"topic", topic,
		"date", date,
		"fetched", len(articles),
		"created", outcome.ArticlesCreated,
		"skipped", outcome.ArticlesSkipped,
		"failed", outcome.ArticlesFailed,
	)
	return outcome
}

func (o *Orchestrator) ingest(ctx context.Context, topic, date string, article domain.Article) (result articleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = articleFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	id := domain.IdentityOf(topic, date, article)
	exists, err := o.news.Exists(ctx, id)
	if err != nil {
		return articleFailed, fmt.Errorf("identity check: %w", err)
	}
	if exists {
		o.logger.Debug("article already cached", "topic", topic, "identity", id.String())
		return articleSkipped, nil
	}

	item := o.enrich(ctx, topic, date, article)

	err = o.news.WithinTx(ctx, func(tx ports.NewsTx) error {
		dup, err := tx.Exists(ctx, id)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrDuplicateItem
		}
		_, err = tx.Create(ctx, item)
		return err
	})
	if errors.Is(err, domain.ErrDuplicateItem) {
		return articleSkipped, nil
	}
	if err != nil {
		return articleFailed, fmt.Errorf("persist: %w", err)
	}
	return articleCreated, nil
}

// enrich builds the stored item. The placeholder article is stored as is, without paid calls.
func (o *Orchestrator) enrich(ctx context.Context, topic, date string, article domain.Article) domain.CachedNewsItem {
	item := domain.CachedNewsItem{
		Topic:       topic,
		Title:       article.Title,
		URL:         article.URL,
		Source:      article.Source,
		ImageURL:    article.ImageURL,
		PublishedAt: article.PublishedAt,
		FetchedAt:   o.now().UTC(),
		Date:        date,
		RawContent:  domain.TruncateRunes(article.Content, domain.RawContentLimit),
		EntryID:     article.EntryID,
		FeedOrigin:  article.FeedOrigin,
	}

	if article.IsPlaceholder() {
		item.Summary = article.Content
		item.SummaryAlternate = article.Content
		item.RelevanceScore = domain.DefaultRelevance
		return item
	}

	item.Summary = o.enrichment.Summarize(ctx, article.Title, article.Content, domain.ToneNeutral)
	item.SummaryAlternate = o.enrichment.Summarize(ctx, article.Title, article.Content, domain.ToneAlternate)
	item.RelevanceScore = domain.ClampScore(o.enrichment.Score(ctx, topic, article.Title, article.Content))
	return item
}
