package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/scanner"
)

const (
	gnewsBaseURL      = "https://gnews.io/api/v4/search"
	apiAttemptTimeout = 10 * time.Second
	defaultUserAgent  = "DigestAgent/1.0"
)

// GNewsOptions configures the GNews search provider.
type GNewsOptions struct {
	APIKey  string
	Lang    string
	Country string
	BaseURL string
	Timeout time.Duration
}

// GNewsProvider queries the GNews keyword search API.
type GNewsProvider struct {
	client *http.Client
	opts   GNewsOptions
}

var (
	_ scanner.Provider    = (*GNewsProvider)(nil)
	_ scanner.TimeBounded = (*GNewsProvider)(nil)
)

// NewGNewsProvider wires an HTTP client; lang/country default to zh/cn.
func NewGNewsProvider(client *http.Client, opts GNewsOptions) *GNewsProvider {
	if client == nil {
		client = &http.Client{}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = gnewsBaseURL
	}
	if opts.Lang == "" {
		opts.Lang = "zh"
	}
	if opts.Country == "" {
		opts.Country = "cn"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = apiAttemptTimeout
	}
	return &GNewsProvider{client: client, opts: opts}
}

// Name identifies the strategy inside the registry.
func (g *GNewsProvider) Name() string {
	return "gnews"
}

// AttemptTimeout bounds one search call.
func (g *GNewsProvider) AttemptTimeout() time.Duration {
	return g.opts.Timeout
}

type gnewsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		Image       string `json:"image"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Fetch searches the newest articles matching topic.
func (g *GNewsProvider) Fetch(ctx context.Context, topic string, maxArticles int) ([]domain.Article, error) {
	query := url.Values{}
	query.Set("q", topic)
	query.Set("lang", g.opts.Lang)
	query.Set("country", g.opts.Country)
	query.Set("max", strconv.Itoa(maxArticles))
	query.Set("apikey", g.opts.APIKey)
	query.Set("sortby", "publishedAt")

	var payload gnewsResponse
	if err := getJSON(ctx, g.client, g.opts.BaseURL, query, &payload); err != nil {
		return nil, fmt.Errorf("gnews: %w", err)
	}

	articles := make([]domain.Article, 0, len(payload.Articles))
	for _, item := range payload.Articles {
		if len(articles) == maxArticles {
			break
		}
		source := item.Source.Name
		if source == "" {
			source = "GNews"
		}
		articles = append(articles, domain.Article{
			Title:       cleanText(item.Title),
			URL:         item.URL,
			Source:      source,
			PublishedAt: parseTimestamp(item.PublishedAt),
			Content:     cleanText(item.Description),
			ImageURL:    item.Image,
		})
	}
	return articles, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, query url.Values, out any) error {
	target, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %s: %w", endpoint, err)
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTimestamp accepts the formats the news APIs emit; zone-less values are UTC.
func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
