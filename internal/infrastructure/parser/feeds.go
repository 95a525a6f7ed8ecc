package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
	"DigestAgent/internal/scanner"
)

const defaultFeedTimeout = 15 * time.Second

// FeedProvider reads the curated and user-registered feeds of a topic.
type FeedProvider struct {
	catalog     ports.FeedCatalog
	client      *http.Client
	feedTimeout time.Duration
	logger      *slog.Logger
}

var (
	_ scanner.Provider    = (*FeedProvider)(nil)
	_ scanner.TimeBounded = (*FeedProvider)(nil)
)

// NewFeedProvider wires the feed catalog. feedTimeout bounds each feed download.
func NewFeedProvider(catalog ports.FeedCatalog, client *http.Client, feedTimeout time.Duration, logger *slog.Logger) *FeedProvider {
	if client == nil {
		client = &http.Client{}
	}
	if feedTimeout <= 0 {
		feedTimeout = defaultFeedTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedProvider{catalog: catalog, client: client, feedTimeout: feedTimeout, logger: logger}
}

func (f *FeedProvider) Name() string {
	return "feeds"
}

// AttemptTimeout is zero: every feed carries its own deadline instead.
func (f *FeedProvider) AttemptTimeout() time.Duration {
	return 0
}

// Fetch walks the topic's feeds in order until maxArticles entries are collected.
// A broken feed is logged and skipped.
func (f *FeedProvider) Fetch(ctx context.Context, topic string, maxArticles int) ([]domain.Article, error) {
	var articles []domain.Article

	for _, feedURL := range f.catalog.FeedsFor(ctx, topic) {
		if len(articles) >= maxArticles || ctx.Err() != nil {
			break
		}

		feed, err := f.parse(ctx, feedURL)
		if err != nil {
			f.logger.Warn("feed fetch failed", "topic", topic, "feed", feedURL, "error", err)
			continue
		}

		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = "RSS Feed"
		}

		for i, item := range feed.Items {
			if i >= maxArticles || len(articles) >= maxArticles {
				break
			}
			article, ok := feedArticle(feedURL, source, item)
			if !ok {
				continue
			}
			articles = append(articles, article)
		}
	}

	return articles, nil
}

func (f *FeedProvider) parse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	feedCtx, cancel := context.WithTimeout(ctx, f.feedTimeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = f.client
	fp.UserAgent = defaultUserAgent
	return fp.ParseURLWithContext(feedURL, feedCtx)
}

func feedArticle(feedURL, source string, item *gofeed.Item) (domain.Article, bool) {
	if item == nil {
		return domain.Article{}, false
	}

	title := cleanText(item.Title)
	body := item.Description
	if body == "" {
		body = item.Content
	}
	content := cleanText(body)
	if title == "" && content == "" {
		return domain.Article{}, false
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}

	return domain.Article{
		Title:       title,
		URL:         strings.TrimSpace(item.Link),
		Source:      source,
		PublishedAt: published,
		Content:     content,
		ImageURL:    itemImage(item),
		EntryID:     EntryID(feedURL, item),
		FeedOrigin:  feedURL,
	}, true
}

// EntryID hashes the feed URL with the item guid, falling back to its link, then "title:link".
func EntryID(feedURL string, item *gofeed.Item) string {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		guid = item.Title + ":" + item.Link
	}
	sum := sha256.Sum256([]byte(feedURL + ":" + guid))
	return hex.EncodeToString(sum[:])
}

func itemImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}

	for _, enclosure := range item.Enclosures {
		if enclosure != nil && strings.Contains(enclosure.Type, "image") && enclosure.URL != "" {
			return enclosure.URL
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	if src := firstImage(item.Content); src != "" {
		return src
	}
	return firstImage(item.Description)
}
