package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/applytrail/internal/cache"
	"github.com/ppiankov/applytrail/internal/llm"
	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/pipeline"
	"github.com/ppiankov/applytrail/internal/source"
	"github.com/ppiankov/applytrail/internal/store"
	"github.com/ppiankov/applytrail/internal/worker"
)

// app is the wired object graph shared by the commands
type app struct {
	cfg     *model.Config
	logger  *zap.Logger
	stores  *store.Stores
	auth    *source.Authenticator
	cache   *cache.LayeredCache
	limiter *worker.Limiter
	orch    *pipeline.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg)
}

func buildApp(ctx context.Context, cfg *model.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	stores, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		stores:  stores,
		auth:    source.NewAuthenticator(cfg.Gmail, logger),
		cache:   cache.NewLayeredCache(time.Hour, filepath.Join(cfg.Data.Dir, "cache"), cfg.Gmail.CacheTTL),
		limiter: worker.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst),
	}

	for backend, rps := range cfg.LLM.BackendRates {
		a.limiter.SetRate(backend, rps, cfg.LLM.Burst)
	}

	src := source.NewGmailSource(a.auth.ServiceFactory(), source.Config{
		User:          cfg.Gmail.User,
		DetailWorkers: cfg.Gmail.DetailWorkers,
		Cache:         a.cache,
		CacheTTL:      cfg.Gmail.CacheTTL,
		Logger:        logger,
	})

	a.orch = pipeline.New(pipeline.Deps{
		Source:    src,
		Inference: a.inferenceFactory(),
		Seen:      stores.Seen,
		Records:   stores.Records,
		Settings:  stores.Settings,
		Logger:    logger,
	}, pipeline.ConfigFromModel(cfg))

	return a, nil
}

func (a *app) close() {
	a.stores.Close()
	_ = a.logger.Sync()
}

// client builds the inference client for a backend
func (a *app) client(settings model.Settings, backend string) (*llm.Client, error) {
	provider, err := llm.NewProvider(llm.ConfigFor(a.cfg.LLM, settings, backend))
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider, llm.ClientConfig{
		Timeout:   time.Duration(a.cfg.LLM.Timeout) * time.Second,
		MaxTokens: a.cfg.LLM.MaxTokens,
		Limiter:   a.limiter,
		Logger:    a.logger,
	}), nil
}

// inferenceFactory resolves the backend from the settings of each run
func (a *app) inferenceFactory() pipeline.InferenceFactory {
	return func(ctx context.Context, settings model.Settings) (pipeline.Inference, error) {
		if !llm.HasCredential(a.cfg.LLM, settings, settings.Backend) {
			return nil, fmt.Errorf("no API key for %s: run 'applytrail settings credential %s <key>' or set it in the environment", settings.Backend, settings.Backend)
		}
		return a.client(settings, settings.Backend)
	}
}
