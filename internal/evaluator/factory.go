package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"go.uber.org/zap"
)

// Settings selects and configures a transport.
type Settings struct {
	Provider          string // openai, chatgpt, gemini, grpc, fixture
	URL               string
	Model             string
	APIKey            string
	GRPCAddr          string
	FixturePath       string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// New builds the configured transport wrapped in a rate limiter. The returned
// close function releases transport resources and is never nil.
func New(ctx context.Context, s Settings, log *zap.Logger) (Evaluator, func() error, error) {
	noop := func() error { return nil }

	var ev Evaluator
	closeFn := noop
	switch s.Provider {
	case "openai", "chatgpt":
		c, err := NewOpenAI(OpenAIConfig{URL: s.URL, APIKey: s.APIKey, Model: s.Model, Timeout: s.Timeout}, log)
		if err != nil {
			return nil, noop, err
		}
		ev = c
	case "gemini":
		c, err := NewGemini(ctx, GeminiConfig{APIKey: s.APIKey, Model: s.Model}, log)
		if err != nil {
			return nil, noop, err
		}
		ev = c
	case "grpc":
		c, err := NewGRPC(s.GRPCAddr)
		if err != nil {
			return nil, noop, &diagnosis.ConfigurationError{Key: "evaluator.grpc_addr", Reason: err.Error()}
		}
		ev, closeFn = withTimeout(c, s.Timeout), c.Close
	case "fixture":
		f, err := LoadFixture(s.FixturePath)
		if err != nil {
			return nil, noop, &diagnosis.ConfigurationError{Key: "evaluator.fixture_path", Reason: err.Error()}
		}
		ev = NewReplayer(f)
	default:
		return nil, noop, &diagnosis.ConfigurationError{Key: "evaluator.provider", Reason: fmt.Sprintf("unknown provider %q", s.Provider)}
	}
	return NewLimited(ev, s.RequestsPerSecond), closeFn, nil
}

// withTimeout bounds each call of transports that have no client-side timeout.
func withTimeout(next Evaluator, d time.Duration) Evaluator {
	if d <= 0 {
		return next
	}
	return Func(func(ctx context.Context, p Prompt) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Invoke(ctx, p)
	})
}
