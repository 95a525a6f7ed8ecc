package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// PlaceholderSource marks the synthetic article produced when every provider came back empty.
	PlaceholderSource = "系统消息"

	// DefaultRelevance is stored when no usable score could be obtained.
	DefaultRelevance = 0.5

	// RawContentLimit bounds the stored snippet of original article text, in runes.
	RawContentLimit = 1000
)

// ErrDuplicateItem is returned when an item with the same identity was committed first.
var ErrDuplicateItem = errors.New("news item already exists")

// Article is a raw item returned by a news provider before enrichment.
type Article struct {
	Title       string
	URL         string
	Source      string
	PublishedAt *time.Time
	Content     string
	ImageURL    string
	// EntryID is set only for feed-sourced articles: a content hash of (FeedOrigin, guid|link|title:url).
	EntryID    string
	FeedOrigin string
}

// IsPlaceholder reports whether the article was synthesized by the fetcher.
func (a Article) IsPlaceholder() bool {
	return a.Source == PlaceholderSource && a.URL == ""
}

// PlaceholderArticle builds the single record returned when no provider yields anything for topic.
func PlaceholderArticle(topic string, now time.Time) Article {
	published := now
	return Article{
		Title:       fmt.Sprintf("暂无%s相关新闻", topic),
		Source:      PlaceholderSource,
		PublishedAt: &published,
		Content:     fmt.Sprintf("我们正在努力为您获取%s相关新闻，请稍后刷新重试。", topic),
	}
}

// Identity is the idempotence key of an ingested article.
// Feed articles are identified by EntryID alone, everything else by (Topic, Date, URL).
type Identity struct {
	EntryID string
	Topic   string
	Date    string
	URL     string
}

// IdentityOf derives the identity of article when ingested for topic on date.
func IdentityOf(topic, date string, article Article) Identity {
	if article.EntryID != "" {
		return Identity{EntryID: article.EntryID}
	}
	return Identity{Topic: topic, Date: date, URL: article.URL}
}

// ByEntry reports whether the identity is content-addressed.
func (i Identity) ByEntry() bool {
	return i.EntryID != ""
}

func (i Identity) String() string {
	if i.ByEntry() {
		return "entry:" + i.EntryID
	}
	return fmt.Sprintf("url:%s|%s|%s", i.Topic, i.Date, i.URL)
}

// CachedNewsItem is the persisted, enriched form of an article. It is created once per identity and never updated.
type CachedNewsItem struct {
	ID               int64
	Topic            string
	Title            string
	Summary          string
	SummaryAlternate string
	URL              string
	Source           string
	ImageURL         string
	PublishedAt      *time.Time
	FetchedAt        time.Time
	Date             string
	RelevanceScore   float64
	RawContent       string
	EntryID          string
	FeedOrigin       string
}

// Identity returns the idempotence key of the stored item.
func (c CachedNewsItem) Identity() Identity {
	if c.EntryID != "" {
		return Identity{EntryID: c.EntryID}
	}
	return Identity{Topic: c.Topic, Date: c.Date, URL: c.URL}
}

// Tone selects the register of a generated summary.
type Tone string

const (
	ToneNeutral   Tone = "neutral"
	ToneAlternate Tone = "alternate"
)

// ClampScore forces a relevance score into [0,1]; NaN becomes DefaultRelevance.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultRelevance
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
