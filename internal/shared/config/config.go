package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Operation names used for chain lookup and usage records.
const (
	OpProcessNote     = "process-note"
	OpGenerateQuiz    = "generate-quiz"
	OpExploreTopic    = "explore-topic"
	OpSummarizeNote   = "summarize-note"
	OpTranscribeAudio = "transcribe-audio"
)

// requestOverhead covers request work outside provider attempts
const requestOverhead = 30 * time.Second

// Operations lists every operation that runs a provider chain
var Operations = []string{OpProcessNote, OpGenerateQuiz, OpExploreTopic, OpSummarizeNote, OpTranscribeAudio}

// Provider names accepted in chain links.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderWhisper   = "whisper"
	ProviderAnthropic = "anthropic"
)

// Key slots a chain link can reference.
const (
	KeyPrimary   = "primary"
	KeySecondary = "secondary"
)

// Config holds all configuration for the functions server
type Config struct {
	// Server
	Port string `envconfig:"PORT" default:"8080"`
	Env  string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`

	// Session tokens issued by the auth platform
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Provider API Keys and models
	GeminiAPIKey          string `envconfig:"GEMINI_API_KEY"`
	GeminiAPIKeySecondary string `envconfig:"GEMINI_API_KEY_SECONDARY"`
	GeminiModel           string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiLiteModel       string `envconfig:"GEMINI_LITE_MODEL" default:"gemini-2.5-flash-lite"`
	GeminiBaseURL         string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	OpenAIAPIKey          string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel           string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL         string `envconfig:"OPENAI_BASE_URL"`
	WhisperModel          string `envconfig:"WHISPER_MODEL" default:"whisper-1"`
	AnthropicAPIKey       string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel        string `envconfig:"ANTHROPIC_MODEL" default:"claude-haiku-4-5-20251001"`
	AnthropicBaseURL      string `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com/v1"`

	// Per-attempt upstream timeout
	AttemptTimeout time.Duration `envconfig:"AI_ATTEMPT_TIMEOUT" default:"30s"`

	// Rate Limiting
	RateLimitPerMinute   int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	TranscribeDailyLimit int `envconfig:"TRANSCRIBE_DAILY_LIMIT" default:"20"`

	// Caching
	CacheTTLSeconds int  `envconfig:"CACHE_TTL_SECONDS" default:"3600"`
	CacheEnabled    bool `envconfig:"CACHE_ENABLED" default:"true"`

	// Optional per-operation chain overrides
	ChainsFile string `envconfig:"CHAINS_FILE"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogFile   string `envconfig:"LOG_FILE"`

	// Chains loaded from ChainsFile, keyed by operation name
	Chains map[string][]ChainLink `ignored:"true"`
}

// ChainLink is one entry of a fallback chain: which provider, which model
// and which key slot to call it with.
type ChainLink struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Key      string `yaml:"key,omitempty"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.ChainsFile != "" {
		chains, err := LoadChains(cfg.ChainsFile)
		if err != nil {
			return nil, err
		}
		cfg.Chains = chains
	}

	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	// At least one provider API key is required
	if c.GeminiAPIKey == "" && c.GeminiAPIKeySecondary == "" && c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" {
		return fmt.Errorf("at least one provider API key is required (GEMINI_API_KEY, GEMINI_API_KEY_SECONDARY, OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("AI_ATTEMPT_TIMEOUT must be positive")
	}
	return nil
}

// LoadChains reads per-operation chain overrides from a YAML file of the form
//
//	explore-topic:
//	  - {provider: gemini, model: gemini-2.5-pro, key: primary}
//	  - {provider: openai, model: gpt-4o-mini}
func LoadChains(path string) (map[string][]ChainLink, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file: %w", err)
	}

	chains := make(map[string][]ChainLink)
	if err := yaml.Unmarshal(data, &chains); err != nil {
		return nil, fmt.Errorf("failed to parse chains file: %w", err)
	}

	for op, links := range chains {
		if !slices.Contains(Operations, op) {
			return nil, fmt.Errorf("chains file: unknown operation %q", op)
		}
		for i, link := range links {
			switch link.Provider {
			case ProviderGemini, ProviderOpenAI, ProviderWhisper, ProviderAnthropic:
			default:
				return nil, fmt.Errorf("chain %s[%d]: unknown provider %q", op, i, link.Provider)
			}
			if link.Model == "" {
				return nil, fmt.Errorf("chain %s[%d]: model is required", op, i)
			}
		}
	}

	return chains, nil
}

// Chain returns the ordered fallback chain for an operation. Links whose
// provider has no key configured are dropped.
func (c *Config) Chain(operation string) []ChainLink {
	links, ok := c.Chains[operation]
	if !ok {
		links = c.defaultChain(operation)
	}

	var available []ChainLink
	for _, link := range links {
		if c.APIKey(link) != "" {
			available = append(available, link)
		}
	}
	return available
}

// defaultChain is primary model on key A, then key B, then the lite model,
// then the other vendors.
func (c *Config) defaultChain(operation string) []ChainLink {
	chain := []ChainLink{
		{Provider: ProviderGemini, Model: c.GeminiModel, Key: KeyPrimary},
		{Provider: ProviderGemini, Model: c.GeminiModel, Key: KeySecondary},
	}

	if operation == OpTranscribeAudio {
		return append(chain, ChainLink{Provider: ProviderWhisper, Model: c.WhisperModel})
	}

	liteKey := KeyPrimary
	if c.GeminiAPIKey == "" {
		liteKey = KeySecondary
	}
	return append(chain,
		ChainLink{Provider: ProviderGemini, Model: c.GeminiLiteModel, Key: liteKey},
		ChainLink{Provider: ProviderOpenAI, Model: c.OpenAIModel},
		ChainLink{Provider: ProviderAnthropic, Model: c.AnthropicModel},
	)
}

// RequestBudget is the longest time a single request may spend walking its
// fallback chain, plus headroom for decoding and persistence.
func (c *Config) RequestBudget() time.Duration {
	links := 1
	for _, op := range Operations {
		links = max(links, len(c.Chain(op)))
	}
	return time.Duration(links)*c.AttemptTimeout + requestOverhead
}

// APIKey resolves the credential a chain link refers to.
func (c *Config) APIKey(link ChainLink) string {
	switch link.Provider {
	case ProviderGemini:
		if link.Key == KeySecondary {
			return c.GeminiAPIKeySecondary
		}
		return c.GeminiAPIKey
	case ProviderOpenAI, ProviderWhisper:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	}
	return ""
}
