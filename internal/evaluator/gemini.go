package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// #region gemini

// GeminiConfig configures the Gemini transport.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini calls the Gemini API through the genai SDK with JSON output.
type Gemini struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGemini builds the SDK client.
func NewGemini(ctx context.Context, cfg GeminiConfig, log *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, &diagnosis.ConfigurationError{Key: "evaluator.api_key", Reason: "required for gemini"}
	}
	if cfg.Model == "" || strings.HasPrefix(cfg.Model, "gpt-") {
		cfg.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gemini{client: client, model: cfg.Model, log: log.Named("gemini")}, nil
}

// Invoke generates one reply.
func (g *Gemini) Invoke(ctx context.Context, p Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if strings.TrimSpace(p.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.User), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	g.log.Debug("completion", zap.String("call", p.Key()), zap.Int("reply_len", len(text)))
	return text, nil
}

// #endregion gemini
