// Package config loads the immutable run configuration from a YAML file,
// an optional .env file and the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of a run. It is built once and passed by value.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Evaluator   EvaluatorConfig   `yaml:"evaluator"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Consistency ConsistencyConfig `yaml:"consistency"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EvaluatorConfig selects and configures the evaluator transport.
type EvaluatorConfig struct {
	Provider          string  `yaml:"provider"` // openai, chatgpt, gemini, grpc, fixture
	APIURL            string  `yaml:"api_url"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	GRPCAddr          string  `yaml:"grpc_addr"`
	FixturePath       string  `yaml:"fixture_path"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// PipelineConfig bounds the batch.
type PipelineConfig struct {
	MaxAttempts     int `yaml:"max_attempts"`
	Workers         int `yaml:"workers"`
	QuestionCount   int `yaml:"question_count"`
	MaxAnswerLength int `yaml:"max_answer_length"`
}

// ConsistencyConfig picks the consistency mode. Zero cut-points take the mode's defaults.
type ConsistencyConfig struct {
	Mode       string  `yaml:"mode"`
	ValidCut   float64 `yaml:"valid_cut"`
	CautionCut float64 `yaml:"caution_cut"`
}

// PromptsConfig names the template file of each stage.
type PromptsConfig struct {
	PassA       string `yaml:"pass_a"`
	PassB       string `yaml:"pass_b"`
	Synthesis   string `yaml:"synthesis"`
	Consistency string `yaml:"consistency"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// ServerConfig configures the HTTP front-end.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Provider names.
const (
	ProviderOpenAI  = "openai"
	ProviderChatGPT = "chatgpt"
	ProviderGemini  = "gemini"
	ProviderGRPC    = "grpc"
	ProviderFixture = "fixture"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Path: "diagnosis.db"},
		Evaluator: EvaluatorConfig{
			Provider: ProviderOpenAI,
			APIURL:   "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Timeout:  "300s",
		},
		Pipeline: PipelineConfig{
			MaxAttempts:     3,
			Workers:         1,
			QuestionCount:   6,
			MaxAnswerLength: 400,
		},
		Consistency: ConsistencyConfig{Mode: string(consistency.ModeSelfReported)},
		Prompts: PromptsConfig{
			PassA:       "prompts/pass_a.md",
			PassB:       "prompts/pass_b.md",
			Synthesis:   "prompts/synthesis.md",
			Consistency: "prompts/consistency.md",
		},
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when it
// does not exist), .env and the environment, in that order, then validates it.
// Relative prompt paths are resolved against the directory of path.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, &diagnosis.ConfigurationError{Key: path, Reason: fmt.Sprintf("parse: %v", err)}
			}
			cfg.Prompts = cfg.Prompts.resolve(filepath.Dir(path))
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Reload re-reads the configuration from scratch.
func Reload(path string) (Config, error) {
	return Load(path)
}

func (p PromptsConfig) resolve(dir string) PromptsConfig {
	abs := func(s string) string {
		if s == "" || filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(dir, s)
	}
	return PromptsConfig{
		PassA:       abs(p.PassA),
		PassB:       abs(p.PassB),
		Synthesis:   abs(p.Synthesis),
		Consistency: abs(p.Consistency),
	}
}

func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("DIAGNOSIS_DB", &c.Database.Path)
	str("LLM_PROVIDER", &c.Evaluator.Provider)
	str("LLM_API_URL", &c.Evaluator.APIURL)
	str("LLM_MODEL", &c.Evaluator.Model)
	str("LLM_API_KEY", &c.Evaluator.APIKey)
	str("EVALUATOR_ADDR", &c.Evaluator.GRPCAddr)
	str("EVALUATOR_FIXTURE", &c.Evaluator.FixturePath)
	str("DIAGNOSIS_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Logging.Level)

	if v := strings.TrimSpace(os.Getenv("MAX_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &diagnosis.ConfigurationError{Key: "MAX_RETRIES", Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		c.Pipeline.MaxAttempts = n
	}
	return nil
}

// #region getters

// EvaluatorTimeout parses evaluator.timeout, falling back to 300s.
func (c Config) EvaluatorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Evaluator.Timeout)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// ConsistencySettings returns the validator configuration, filling zero
// cut-points from the mode's defaults.
func (c Config) ConsistencySettings() consistency.Config {
	out := consistency.DefaultConfig(consistency.Mode(c.Consistency.Mode))
	out.Mode = consistency.Mode(c.Consistency.Mode)
	if c.Consistency.ValidCut != 0 {
		out.ValidCut = c.Consistency.ValidCut
	}
	if c.Consistency.CautionCut != 0 {
		out.CautionCut = c.Consistency.CautionCut
	}
	return out
}

// EvaluatorSettings returns the transport settings.
func (c Config) EvaluatorSettings() evaluator.Settings {
	e := c.Evaluator
	return evaluator.Settings{
		Provider:          e.Provider,
		URL:               e.APIURL,
		Model:             e.Model,
		APIKey:            e.APIKey,
		GRPCAddr:          e.GRPCAddr,
		FixturePath:       e.FixturePath,
		Timeout:           c.EvaluatorTimeout(),
		RequestsPerSecond: e.RequestsPerSecond,
	}
}

// TemplateFiles returns the prompt template locations.
func (c Config) TemplateFiles() runner.TemplateFiles {
	return runner.TemplateFiles{
		PassA:       c.Prompts.PassA,
		PassB:       c.Prompts.PassB,
		Synthesis:   c.Prompts.Synthesis,
		Consistency: c.Prompts.Consistency,
	}
}

// #endregion getters

// #region validate

// Validate reports the first invalid key as a *diagnosis.ConfigurationError.
func (c Config) Validate() error {
	bad := func(key, reason string) error {
		return &diagnosis.ConfigurationError{Key: key, Reason: reason}
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return bad("database.path", "required")
	}

	e := c.Evaluator
	switch e.Provider {
	case ProviderOpenAI, ProviderChatGPT:
		if e.APIURL == "" {
			return bad("evaluator.api_url", "required for "+e.Provider)
		}
		if e.Model == "" {
			return bad("evaluator.model", "required for "+e.Provider)
		}
		if e.APIKey == "" {
			return bad("evaluator.api_key", "required for "+e.Provider+" (set LLM_API_KEY)")
		}
	case ProviderGemini:
		if e.APIKey == "" {
			return bad("evaluator.api_key", "required for gemini (set LLM_API_KEY)")
		}
	case ProviderGRPC:
		if e.GRPCAddr == "" {
			return bad("evaluator.grpc_addr", "required for grpc (set EVALUATOR_ADDR)")
		}
	case ProviderFixture:
		if e.FixturePath == "" {
			return bad("evaluator.fixture_path", "required for fixture (set EVALUATOR_FIXTURE)")
		}
	default:
		return bad("evaluator.provider", fmt.Sprintf("unknown provider %q", e.Provider))
	}
	if e.RequestsPerSecond < 0 {
		return bad("evaluator.requests_per_second", "must not be negative")
	}

	p := c.Pipeline
	if p.MaxAttempts < 1 {
		return bad("pipeline.max_attempts", "must be at least 1")
	}
	if p.Workers < 1 {
		return bad("pipeline.workers", "must be at least 1")
	}
	if p.QuestionCount < 1 {
		return bad("pipeline.question_count", "must be at least 1")
	}
	if p.MaxAnswerLength < 1 {
		return bad("pipeline.max_answer_length", "must be at least 1")
	}

	return c.ConsistencySettings().Validate()
}

// #endregion validate
