// Package completion talks to an OpenAI-compatible chat completions API.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"i4.energy/across/aisms/history"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"
	defaultTimeout = 120 * time.Second

	// FallbackReply is sent when no completion could be obtained.
	FallbackReply = "I'm having trouble right now talking to OpenAI. Try again later please"
)

// ErrEmptyResponse is returned when the API answers without any choice.
var ErrEmptyResponse = errors.New("completion response has no choices")

// Client is a chat completions client.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	fallback string
	client   *http.Client
	logger   *slog.Logger
}

// Config configures a Client. Zero fields take defaults.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Fallback string
	Timeout  time.Duration
	// HTTPClient replaces the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackReply
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		fallback: cfg.Fallback,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []history.Message `json:"messages"`
	Stream   bool              `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      history.Message `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends the conversation and returns the content of the first choice.
func (c *Client) Chat(ctx context.Context, messages []history.Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("completion API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("Completion received",
		"model", c.model,
		"duration", time.Since(start),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"finish_reason", out.Choices[0].FinishReason,
	)
	return out.Choices[0].Message.Content, nil
}

// Complete is Chat for callers that always need a reply: any failure is
// logged and the fallback reply returned instead.
func (c *Client) Complete(ctx context.Context, messages []history.Message) string {
	reply, err := c.Chat(ctx, messages)
	if err != nil {
		c.logger.Error("Failed to get completion", "error", err)
		return c.fallback
	}
	return reply
}
