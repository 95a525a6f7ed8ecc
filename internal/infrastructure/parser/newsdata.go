package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/scanner"
)

const newsdataBaseURL = "https://newsdata.io/api/1/news"

// NewsDataOptions configures the NewsData.io provider.
type NewsDataOptions struct {
	APIKey   string
	Language string
	BaseURL  string
	Timeout  time.Duration
}

// NewsDataProvider queries the NewsData.io latest-news API.
type NewsDataProvider struct {
	client *http.Client
	opts   NewsDataOptions
}

var (
	_ scanner.Provider    = (*NewsDataProvider)(nil)
	_ scanner.TimeBounded = (*NewsDataProvider)(nil)
)

// NewNewsDataProvider wires an HTTP client; language defaults to "zh,en".
func NewNewsDataProvider(client *http.Client, opts NewsDataOptions) *NewsDataProvider {
	if client == nil {
		client = &http.Client{}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = newsdataBaseURL
	}
	if opts.Language == "" {
		opts.Language = "zh,en"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = apiAttemptTimeout
	}
	return &NewsDataProvider{client: client, opts: opts}
}

func (n *NewsDataProvider) Name() string {
	return "newsdata"
}

func (n *NewsDataProvider) AttemptTimeout() time.Duration {
	return n.opts.Timeout
}

type newsdataResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		SourceID    string `json:"source_id"`
		PubDate     string `json:"pubDate"`
		Description string `json:"description"`
		Content     string `json:"content"`
		ImageURL    string `json:"image_url"`
	} `json:"results"`
}

// Fetch returns up to maxArticles matches for topic.
func (n *NewsDataProvider) Fetch(ctx context.Context, topic string, maxArticles int) ([]domain.Article, error) {
	query := url.Values{}
	query.Set("apikey", n.opts.APIKey)
	query.Set("q", topic)
	query.Set("language", n.opts.Language)
	query.Set("size", strconv.Itoa(maxArticles))

	var payload newsdataResponse
	if err := getJSON(ctx, n.client, n.opts.BaseURL, query, &payload); err != nil {
		return nil, fmt.Errorf("newsdata: %w", err)
	}
	if payload.Status != "" && payload.Status != "success" {
		return nil, fmt.Errorf("newsdata: status %q", payload.Status)
	}

	articles := make([]domain.Article, 0, len(payload.Results))
	for _, item := range payload.Results {
		if len(articles) == maxArticles {
			break
		}
		content := item.Description
		if content == "" {
			content = item.Content
		}
		source := item.SourceID
		if source == "" {
			source = "NewsData"
		}
		articles = append(articles, domain.Article{
			Title:       cleanText(item.Title),
			URL:         item.Link,
			Source:      source,
			PublishedAt: parseTimestamp(item.PubDate),
			Content:     cleanText(content),
			ImageURL:    item.ImageURL,
		})
	}
	return articles, nil
}
