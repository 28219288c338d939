package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/model"
)

// File names inside the data directory
const (
	SeenFile     = "seen.json"
	RecordsFile  = "records.json"
	SettingsFile = "settings.json"
)

// Stores bundles the configured backends
type Stores struct {
	Seen     SeenStore
	Records  RecordStore
	Settings *SettingsStore

	closers []func()
}

// Close releases backend connections
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Open builds the stores selected in cfg.Storage
func Open(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*Stores, error) {
	logger = logging.OrNop(logger)
	dir := cfg.Data.Dir

	stores := &Stores{
		Settings: NewSettingsStore(filepath.Join(dir, SettingsFile), cfg.Defaults.Seed()),
	}

	switch strings.ToLower(cfg.Storage.SeenBackend) {
	case "", "file":
		stores.Seen = NewFileSeenStore(filepath.Join(dir, SeenFile))
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Storage.RedisAddr, err)
		}
		stores.closers = append(stores.closers, func() { _ = rdb.Close() })
		stores.Seen = NewRedisSeenStore(rdb, cfg.Storage.RedisKey)
		logger.Debug("seen set in redis", zap.String("addr", cfg.Storage.RedisAddr), zap.String("key", cfg.Storage.RedisKey))
	default:
		return nil, fmt.Errorf("unknown seen backend: %s (supported: file, redis)", cfg.Storage.SeenBackend)
	}

	switch strings.ToLower(cfg.Storage.RecordsBackend) {
	case "", "file":
		stores.Records = NewFileRecordStore(filepath.Join(dir, RecordsFile))
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		records, err := NewPostgresRecordStore(ctx, pool)
		if err != nil {
			pool.Close()
			stores.Close()
			return nil, err
		}
		stores.closers = append(stores.closers, pool.Close)
		stores.Records = records
		logger.Debug("records in postgres")
	default:
		stores.Close()
		return nil, fmt.Errorf("unknown records backend: %s (supported: file, postgres)", cfg.Storage.RecordsBackend)
	}

	return stores, nil
}
