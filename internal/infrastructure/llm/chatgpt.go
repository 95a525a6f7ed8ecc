package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"DigestAgent/internal/ports"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Options configures a ChatGPTClient.
type Options struct {
	Endpoint string
	Model    string
	APIKey   string
	// RequestsPerMinute caps outgoing calls; zero means unlimited.
	RequestsPerMinute int
	Timeout           time.Duration
}

// ChatGPTClient implements ports.ChatClient backed by OpenAI-compatible APIs
// (OpenAI, NVIDIA NIM, DashScope compatible mode, Ollama /v1).
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ ports.ChatClient = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(opts Options) *ChatGPTClient {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &ChatGPTClient{
		endpoint:   opts.Endpoint,
		model:      opts.Model,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
	}
}

type chatMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	// Ollama's native /api/chat shape.
	Message *chatMessage `json:"message"`
}

// Complete sends one non-streaming chat completion and returns the reply text.
// Reasoning models that leave content empty are answered from reasoning_content.
func (c *ChatGPTClient) Complete(ctx context.Context, messages []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	payload := chatRequest{
		Model:       c.model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat api error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}

	var msg chatMessage
	switch {
	case len(decoded.Choices) > 0:
		msg = decoded.Choices[0].Message
	case decoded.Message != nil:
		msg = *decoded.Message
	default:
		return "", fmt.Errorf("completion has no choices")
	}

	if text := strings.TrimSpace(msg.Content); text != "" {
		return text, nil
	}
	if text := strings.TrimSpace(msg.ReasoningContent); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("completion is empty")
}
