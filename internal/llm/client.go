package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/metrics"
	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/worker"
)

const classifyMaxTokens = 16

// ClientConfig tunes the classify/extract client
type ClientConfig struct {
	// Timeout bounds every backend call. Zero means 30s.
	Timeout time.Duration

	// MaxTokens for extraction responses
	MaxTokens int

	// Limiter paces calls per backend; nil disables pacing
	Limiter *worker.Limiter

	Logger *zap.Logger
}

// Client exposes the classify/extract capability set over any Provider.
// It performs no retries; retry policy belongs to the caller.
type Client struct {
	provider  Provider
	timeout   time.Duration
	maxTokens int
	limiter   *worker.Limiter
	logger    *zap.Logger
}

// NewClient wraps a provider
func NewClient(provider Provider, cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		provider:  provider,
		timeout:   timeout,
		maxTokens: cfg.MaxTokens,
		limiter:   cfg.Limiter,
		logger:    logging.OrNop(cfg.Logger).With(zap.String("backend", provider.Name())),
	}
}

// Name returns the backend name
func (c *Client) Name() string {
	return c.provider.Name()
}

// Classify decides whether item confirms a submitted job application.
// Items carrying both confirmation and rejection language are negative
// without consulting the backend.
func (c *Client) Classify(ctx context.Context, item model.Item) (bool, error) {
	if lexicalTieBreak(item) {
		c.logger.Debug("rejection language overrides confirmation", zap.String("item", item.ID))
		return false, nil
	}

	resp, err := c.complete(ctx, "classify", CompletionRequest{
		System:    classifySystem,
		Prompt:    BuildClassifyPrompt(item),
		MaxTokens: classifyMaxTokens,
	})
	if err != nil {
		return false, err
	}

	return ParseClassification(resp.Text)
}

// Extract pulls company and position out of a confirmation email.
// Returns model.ErrExtractionIncomplete when neither field is present.
func (c *Client) Extract(ctx context.Context, item model.Item) (model.Extraction, error) {
	resp, err := c.complete(ctx, "extract", CompletionRequest{
		System:    extractSystem,
		Prompt:    BuildExtractPrompt(item),
		MaxTokens: c.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return model.Extraction{}, err
	}

	ext, err := ParseExtraction(resp.Text)
	if err != nil {
		c.logger.Debug("extraction rejected",
			zap.String("item", item.ID),
			zap.String("response", truncate(resp.Text, 200)),
			zap.Error(err))
		return ext, err
	}
	return ext, nil
}

// Ping checks the backend
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.Ping(ctx)
}

func (c *Client) complete(ctx context.Context, operation string, req CompletionRequest) (*CompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.provider.Name()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Complete(callCtx, req)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordInferenceLatency(c.provider.Name(), operation, "ok", elapsed)
	case IsRateLimited(err):
		metrics.RecordInferenceLatency(c.provider.Name(), operation, "rate_limited", elapsed)
	default:
		metrics.RecordInferenceLatency(c.provider.Name(), operation, "error", elapsed)
	}

	if err != nil {
		c.logger.Debug("backend call failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		if errors.Is(err, model.ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrInference, err)
	}

	c.logger.Debug("backend call",
		zap.String("operation", operation),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}
