package parser

import (
	"context"
	"log/slog"
	"sort"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

// CustomFeedLister is the slice of the user directory the catalog needs.
type CustomFeedLister interface {
	CustomFeedsForTopic(ctx context.Context, topic string) ([]domain.CustomFeed, error)
}

// Catalog resolves the feed URLs serving a topic: curated feeds first, then
// active user-registered feeds. A topic with neither uses every curated feed.
type Catalog struct {
	curated map[string][]string
	custom  CustomFeedLister
	logger  *slog.Logger
}

var _ ports.FeedCatalog = (*Catalog)(nil)

// NewCatalog copies curated; custom may be nil.
func NewCatalog(curated map[string][]string, custom CustomFeedLister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	copied := make(map[string][]string, len(curated))
	for topic, urls := range curated {
		copied[topic] = append([]string(nil), urls...)
	}
	return &Catalog{curated: copied, custom: custom, logger: logger}
}

// FeedsFor returns the de-duplicated feed list for topic.
func (c *Catalog) FeedsFor(ctx context.Context, topic string) []string {
	seen := map[string]struct{}{}
	var feeds []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		feeds = append(feeds, u)
	}

	for _, u := range c.curated[topic] {
		add(u)
	}

	if c.custom != nil {
		custom, err := c.custom.CustomFeedsForTopic(ctx, topic)
		if err != nil {
			c.logger.Warn("load custom feeds failed", "topic", topic, "error", err)
		}
		for _, feed := range custom {
			if feed.IsActive {
				add(feed.FeedURL)
			}
		}
	}

	if len(feeds) > 0 {
		return feeds
	}

	topics := make([]string, 0, len(c.curated))
	for t := range c.curated {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		for _, u := range c.curated[t] {
			add(u)
		}
	}
	return feeds
}

// DefaultFeeds is the built-in curated feed map.
func DefaultFeeds() map[string][]string {
	return map[string][]string{
		"科技": {
			"https://www.theverge.com/rss/index.xml",
			"https://techcrunch.com/feed/",
			"https://www.wired.com/feed/rss",
			"https://www.engadget.com/rss.xml",
		},
		"AI": {
			"https://www.artificialintelligence-news.com/feed/",
			"https://www.technologyreview.com/feed/",
			"https://www.vox.com/rss/index.xml",
			"https://www.reddit.com/r/artificial.rss",
		},
		"财经": {
			"https://www.economist.com/business/rss.xml",
			"https://www.marketwatch.com/rss/topstories",
			"https://finance.yahoo.com/rss/topstories",
			"https://www.bloomberg.com/feeds/news.rss",
		},
		"股市": {
			"https://finance.yahoo.com/rss/finance/rssindex",
			"https://www.cnbc.com/id/100003114/device/rss/rss.html",
		},
		"国际时事": {
			"https://feeds.bbci.co.uk/news/world/rss.xml",
			"https://www.reddit.com/r/worldnews.rss",
			"https://www.vox.com/rss/index.xml",
		},
		"国际": {
			"https://feeds.bbci.co.uk/news/world/rss.xml",
			"https://www.reddit.com/r/worldnews.rss",
		},
		"科学": {
			"https://www.nature.com/nature.rss",
			"https://www.science.org/rss/news_current.xml",
			"https://www.sciencedaily.com/rss/all.xml",
		},
		"娱乐": {
			"https://www.theguardian.com/uk/culture/rss",
			"https://www.indiewire.com/feed/rss",
			"https://www.variety.com/feed/",
		},
		"体育": {
			"https://www.espn.com/espn/rss/news",
			"https://feeds.bbci.co.uk/sport/rss.xml",
			"https://sports.yahoo.com/rss/",
			"https://www.cbssports.com/rss/headlines/",
		},
		"搞笑": {
			"https://www.theonion.com/rss",
			"https://www.boredpanda.com/feed/",
		},
		"奇闻": {
			"https://nypost.com/feed/",
			"https://www.mirror.co.uk/news/rss.xml",
			"https://www.telegraph.co.uk/news/rss.xml",
		},
		"阮一峰的网络日志": {
			"https://www.ruanyifeng.com/blog/atom.xml",
		},
		"美团技术团队": {
			"https://tech.meituan.com/feed",
		},
		"少数派": {
			"https://sspai.com/feed",
		},
	}
}
