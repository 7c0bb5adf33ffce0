package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"go.uber.org/zap"
)

// #region openai-types

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// #endregion openai-types

// #region openai-client

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	URL     string // full endpoint, e.g. https://api.openai.com/v1/chat/completions
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAI calls a chat completions endpoint with temperature 0 and JSON
// object output. It does not retry; the runner owns retries.
type OpenAI struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewOpenAI validates cfg and builds the client.
func NewOpenAI(cfg OpenAIConfig, log *zap.Logger) (*OpenAI, error) {
	switch {
	case cfg.URL == "":
		return nil, &diagnosis.ConfigurationError{Key: "evaluator.api_url", Reason: "required"}
	case cfg.Model == "":
		return nil, &diagnosis.ConfigurationError{Key: "evaluator.model", Reason: "required"}
	case cfg.APIKey == "":
		return nil, &diagnosis.ConfigurationError{Key: "evaluator.api_key", Reason: "required"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("openai"),
	}, nil
}

// Invoke sends one chat completion request and returns the first choice's content.
func (c *OpenAI) Invoke(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()

	var messages []chatMessage
	if strings.TrimSpace(p.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: p.User})

	body, err := json.Marshal(chatRequest{
		Model:          c.cfg.Model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &diagnosis.ConfigurationError{
			Key:    "evaluator.api_key",
			Reason: fmt.Sprintf("rejected with status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	c.log.Debug("completion",
		zap.String("call", p.Key()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("reply_len", len(text)))
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion openai-client
