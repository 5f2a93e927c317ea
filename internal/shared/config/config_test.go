package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		DatabaseURL:     "postgres://localhost/retrolearn",
		JWTSecret:       "secret",
		GeminiAPIKey:    "g-primary",
		GeminiModel:     "gemini-2.5-flash",
		GeminiLiteModel: "gemini-2.5-flash-lite",
		OpenAIModel:     "gpt-4o-mini",
		WhisperModel:    "whisper-1",
		AnthropicModel:  "claude-haiku-4-5-20251001",
		AttemptTimeout:  30 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: true},
		{name: "no provider keys", mutate: func(c *Config) { c.GeminiAPIKey = "" }, wantErr: true},
		{name: "only anthropic", mutate: func(c *Config) { c.GeminiAPIKey = ""; c.AnthropicAPIKey = "a" }},
		{name: "zero timeout", mutate: func(c *Config) { c.AttemptTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultChainSkipsMissingKeys(t *testing.T) {
	cfg := baseConfig()
	cfg.AnthropicAPIKey = "a-key"

	chain := cfg.Chain(OpExploreTopic)
	want := []ChainLink{
		{Provider: ProviderGemini, Model: "gemini-2.5-flash", Key: KeyPrimary},
		{Provider: ProviderGemini, Model: "gemini-2.5-flash-lite", Key: KeyPrimary},
		{Provider: ProviderAnthropic, Model: "claude-haiku-4-5-20251001"},
	}
	if len(chain) != len(want) {
		t.Fatalf("expected %d links, got %d: %+v", len(want), len(chain), chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("link %d = %+v, want %+v", i, chain[i], want[i])
		}
	}
}

func TestDefaultChainLiteModelUsesSecondaryKey(t *testing.T) {
	cfg := baseConfig()
	cfg.GeminiAPIKey = ""
	cfg.GeminiAPIKeySecondary = "g-secondary"

	chain := cfg.Chain(OpSummarizeNote)
	if len(chain) != 2 {
		t.Fatalf("expected 2 links, got %+v", chain)
	}
	if chain[1].Model != "gemini-2.5-flash-lite" || chain[1].Key != KeySecondary {
		t.Errorf("unexpected lite link %+v", chain[1])
	}
}

func TestTranscriptionChainEndsWithWhisper(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "o-key"

	chain := cfg.Chain(OpTranscribeAudio)
	last := chain[len(chain)-1]
	if last.Provider != ProviderWhisper || last.Model != "whisper-1" {
		t.Errorf("expected whisper last, got %+v", last)
	}
}

func TestLoadChains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := `
generate-quiz:
  - provider: openai
    model: gpt-4o
  - provider: gemini
    model: gemini-2.5-pro
    key: secondary
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}

	chains, err := LoadChains(path)
	if err != nil {
		t.Fatalf("LoadChains: %v", err)
	}

	cfg := baseConfig()
	cfg.OpenAIAPIKey = "o-key"
	cfg.GeminiAPIKeySecondary = "g-secondary"
	cfg.Chains = chains

	chain := cfg.Chain(OpGenerateQuiz)
	if len(chain) != 2 || chain[0].Model != "gpt-4o" || chain[1].Key != KeySecondary {
		t.Fatalf("unexpected chain %+v", chain)
	}

	// Operations without an override keep the default chain.
	if got := cfg.Chain(OpExploreTopic); len(got) == 0 || got[0].Provider != ProviderGemini {
		t.Errorf("expected default chain for explore-topic, got %+v", got)
	}
}

func TestLoadChainsRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte("explore-topic:\n  - {provider: mistral, model: m}\n"), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}
	if _, err := LoadChains(path); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadChainsRejectsUnknownOperation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte("translate:\n  - {provider: gemini, model: m}\n"), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}
	if _, err := LoadChains(path); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestRequestBudgetCoversFullChain(t *testing.T) {
	cfg := baseConfig()
	cfg.GeminiAPIKeySecondary = "g-secondary"
	cfg.OpenAIAPIKey = "o-key"
	cfg.AnthropicAPIKey = "a-key"
	cfg.AttemptTimeout = 30 * time.Second

	budget := cfg.RequestBudget()
	for _, op := range Operations {
		walk := time.Duration(len(cfg.Chain(op))) * cfg.AttemptTimeout
		if budget <= walk {
			t.Errorf("%s: budget %s does not exceed chain walk %s", op, budget, walk)
		}
	}
	if want := 5*30*time.Second + requestOverhead; budget != want {
		t.Errorf("budget = %s, want %s", budget, want)
	}
}
