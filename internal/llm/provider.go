package llm

import (
	"fmt"
	"net/http"

	"github.com/openai/openai-go/option"
)

// ProviderConfig selects and configures one completion backend.
type ProviderConfig struct {
	Provider  string
	Model     string
	OllamaURL string
	OpenAIKey string
	GeminiKey string
	Client    *http.Client
}

// New builds the Completer named by cfg.Provider.
func New(cfg ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.Model, cfg.Client), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIKey)}
		if cfg.Client != nil {
			opts = append(opts, option.WithHTTPClient(cfg.Client))
		}
		return NewOpenAI(cfg.Model, opts...), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return NewGemini(cfg.GeminiKey, cfg.Model), nil
	}
	return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
}
