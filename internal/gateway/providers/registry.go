package providers

import (
	"net/http"

	"github.com/retrolearn/retrolearn/internal/shared/config"
)

// Registry turns configured chain links into adapters
type Registry struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewRegistry creates a registry. Credentials are read from cfg only.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		cfg: cfg,
		httpClient: &http.Client{
			// Outer bound; each attempt also carries its own deadline.
			Timeout: 2 * cfg.AttemptTimeout,
		},
	}
}

// Chain builds a fresh adapter list for one invocation of an operation
func (r *Registry) Chain(operation string) []Adapter {
	links := r.cfg.Chain(operation)

	chain := make([]Adapter, 0, len(links))
	for _, link := range links {
		if adapter := r.adapter(link); adapter != nil {
			chain = append(chain, adapter)
		}
	}
	return chain
}

func (r *Registry) adapter(link config.ChainLink) Adapter {
	key := r.cfg.APIKey(link)
	if key == "" {
		return nil
	}

	switch link.Provider {
	case config.ProviderGemini:
		return NewGeminiAdapter(key, link.Model, r.cfg.GeminiBaseURL, r.httpClient)
	case config.ProviderOpenAI:
		return NewOpenAIAdapter(key, link.Model, r.cfg.OpenAIBaseURL, r.httpClient)
	case config.ProviderWhisper:
		return NewWhisperAdapter(key, link.Model, r.cfg.OpenAIBaseURL, r.httpClient)
	case config.ProviderAnthropic:
		return NewAnthropicAdapter(key, link.Model, r.cfg.AnthropicBaseURL, r.httpClient)
	}
	return nil
}
