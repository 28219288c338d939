package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/ppiankov/applytrail/internal/util"
)

// Provider defines the interface for LLM backends. Every backend owns its
// endpoint, request/response envelope and credential, and normalizes the
// answer to plain response text.
type Provider interface {
	// Name returns the backend name
	Name() string

	// Complete sends one prompt and returns the response text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Ping checks that the backend is configured and reachable
	Ping(ctx context.Context) error
}

// CompletionRequest contains the input for one completion
type CompletionRequest struct {
	// System is the system instruction
	System string

	// Prompt is the user message
	Prompt string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// JSON asks the backend for a JSON object when it supports it
	JSON bool
}

// CompletionResponse contains the normalized backend answer
type CompletionResponse struct {
	// Text is the response text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds backend configuration
type Config struct {
	// Provider name: "openai", "anthropic", "gemini", "groq", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey is the backend credential (not used by Ollama)
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for HTTP requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   30,
		MaxTokens: 300,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout <= 0 {
		return fallback
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 300
}

func (c Config) model(override, fallback string) string {
	if override != "" {
		return override
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

// newHTTPClient builds the client shared by the raw-HTTP backends
func newHTTPClient(config Config, fallback time.Duration) *http.Client {
	return &http.Client{
		Timeout: config.timeout(fallback),
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}
}
