package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// maxMessageRunes is the Bot API limit for one sendMessage text.
	maxMessageRunes = 4096
)

// Notifier posts sweep reports to an operator chat through the Bot API.
type Notifier struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

var _ ports.ReportPublisher = (*Notifier)(nil)

// NewNotifier targets chatID; an empty apiBase means the public Bot API.
func NewNotifier(botToken, chatID, apiBase string) *Notifier {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Notifier{
		token:   botToken,
		chatID:  chatID,
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type sendResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// PublishReport sends text as a plain message, cut to the Bot API limit.
func (n *Notifier) PublishReport(ctx context.Context, text string) error {
	if n.token == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	form := url.Values{
		"chat_id":                  {n.chatID},
		"text":                     {domain.TruncateRunes(text, maxMessageRunes)},
		"disable_web_page_preview": {"true"},
	}
	endpoint := n.apiBase + "/bot" + n.token + "/sendMessage"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()

	var result sendResult
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK || (decodeErr == nil && !result.OK) {
		if result.Description != "" {
			return fmt.Errorf("telegram %s: %s", resp.Status, result.Description)
		}
		return fmt.Errorf("telegram %s", resp.Status)
	}
	return nil
}
