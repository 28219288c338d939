package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/applytrail/internal/model"
)

// apiKeyEnv maps backends to the environment variable holding their key
var apiKeyEnv = map[string]string{
	model.BackendOpenAI:    "OPENAI_API_KEY",
	model.BackendAnthropic: "ANTHROPIC_API_KEY",
	model.BackendGemini:    "GEMINI_API_KEY",
	model.BackendGroq:      "GROQ_API_KEY",
}

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case model.BackendOpenAI:
		return NewOpenAIProvider(config)

	case model.BackendAnthropic, "claude":
		return NewAnthropicProvider(config)

	case model.BackendGemini, "google":
		return NewGeminiProvider(config)

	case model.BackendGroq:
		return NewGroqProvider(config)

	case model.BackendOllama:
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: %s)", config.Provider, strings.Join(model.Backends, ", "))
	}
}

// ConfigFor resolves the provider configuration for a backend. The credential
// stored in settings wins over the backend's environment variable.
func ConfigFor(cfg model.LLMConfig, settings model.Settings, backend string) Config {
	backend = strings.ToLower(backend)

	c := Config{
		Provider:   backend,
		Model:      cfg.Models[backend],
		APIKey:     settings.Credential(backend),
		BaseURL:    cfg.BaseURLs[backend],
		Timeout:    cfg.Timeout,
		MaxTokens:  cfg.MaxTokens,
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
		NoProxy:    cfg.NoProxy,
	}

	if c.APIKey == "" {
		if env, ok := apiKeyEnv[backend]; ok {
			c.APIKey = os.Getenv(env)
		}
	}
	if backend == model.BackendOllama && c.BaseURL == "" {
		c.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	return c
}

// HasCredential reports whether the backend can be constructed without a key
// prompt: Ollama needs none, the others need settings or env.
func HasCredential(cfg model.LLMConfig, settings model.Settings, backend string) bool {
	if strings.EqualFold(backend, model.BackendOllama) {
		return true
	}
	return ConfigFor(cfg, settings, backend).APIKey != ""
}
