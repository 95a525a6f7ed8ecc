package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

// Client talks to an external ML service for relevance scoring and summarization.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Enricher = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// Score sends the article for relevance scoring against topic.
func (c *Client) Score(ctx context.Context, topic, title, content string) (float64, error) {
	payload := map[string]any{
		"topic":   topic,
		"title":   title,
		"content": content,
	}

	var resp struct {
		Score *float64 `json:"score"`
	}
	if err := c.post(ctx, "/rank", payload, &resp); err != nil {
		return 0, err
	}
	if resp.Score == nil {
		return 0, fmt.Errorf("rank response has no score")
	}

	return domain.ClampScore(*resp.Score), nil
}

// Summarize requests a summary in the given tone.
func (c *Client) Summarize(ctx context.Context, title, content string, tone domain.Tone) (string, error) {
	payload := map[string]any{
		"title":   title,
		"content": content,
		"tone":    string(tone),
	}

	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "/summarize", payload, &resp); err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return "", fmt.Errorf("summarize response is empty")
	}
	return summary, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	if c.endpoint == "" {
		return fmt.Errorf("ml client misconfigured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
