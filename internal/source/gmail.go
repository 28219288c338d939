package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"

	"github.com/ppiankov/applytrail/internal/cache"
	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/metrics"
	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/worker"
)

const (
	// maxPageSize is the largest page Gmail's list call accepts
	maxPageSize = 500

	defaultMaxCount = 100
)

// ServiceFactory builds an authenticated Gmail client. It must return an
// error matching model.ErrAuth when no credential is available.
type ServiceFactory func(ctx context.Context) (*gmail.Service, error)

// Config configures a GmailSource
type Config struct {
	// User is the Gmail user id, usually "me"
	User string

	// DetailWorkers bounds concurrent detail fetches
	DetailWorkers int

	// Cache stores parsed items by message id; nil disables caching
	Cache    cache.Cache
	CacheTTL time.Duration

	Logger *zap.Logger
}

// GmailSource fetches inbox items from Gmail
type GmailSource struct {
	services ServiceFactory
	user     string
	pool     *worker.Pool
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewGmailSource creates a Gmail source
func NewGmailSource(services ServiceFactory, cfg Config) *GmailSource {
	user := cfg.User
	if user == "" {
		user = "me"
	}
	return &GmailSource{
		services: services,
		user:     user,
		pool:     worker.NewPool(cfg.DetailWorkers),
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   logging.OrNop(cfg.Logger),
		now:      time.Now,
	}
}

// Query builds the inbox search for a date floor (day granularity, local zone)
func Query(floor time.Time) string {
	return fmt.Sprintf("in:inbox after:%s", floor.Format("2006/01/02"))
}

// Fetch lists inbox messages inside the window and fetches their details.
// Individual detail failures are logged and dropped. The batch fails only on
// authentication (model.ErrAuth) or listing (model.ErrFetch).
func (s *GmailSource) Fetch(ctx context.Context, w model.Window) ([]model.Item, error) {
	svc, err := s.services(ctx)
	if err != nil {
		if errors.Is(err, model.ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrAuth, err)
	}

	query := Query(w.Floor(s.now()))
	ids, err := s.list(ctx, svc, query, w.MaxCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFetch, err)
	}

	s.logger.Debug("listed messages", zap.String("query", query), zap.Int("count", len(ids)), zap.Int("workers", s.pool.Workers()))

	jobs := make([]worker.Job, len(ids))
	for i, id := range ids {
		jobs[i] = &detailJob{source: s, svc: svc, id: id}
	}

	ok, failed := worker.Partition(s.pool.Run(ctx, jobs))

	items := make([]model.Item, 0, len(ok))
	for _, r := range ok {
		items = append(items, r.(*detailResult).item)
	}
	for _, r := range failed {
		if r == nil {
			continue
		}
		s.logger.Warn("dropping message", zap.String("id", r.(*detailResult).id), zap.Error(r.GetError()))
	}
	if err := ctx.Err(); err != nil {
		return items, fmt.Errorf("%w: %w", model.ErrFetch, err)
	}

	if len(failed) > 0 {
		s.logger.Info("fetched with partial failures", zap.Int("items", len(items)), zap.Int("dropped", len(failed)))
	}
	return items, nil
}

// list pages through message ids matching query, up to maxCount
func (s *GmailSource) list(ctx context.Context, svc *gmail.Service, query string, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		maxCount = defaultMaxCount
	}

	var ids []string
	pageToken := ""
	for len(ids) < maxCount {
		call := svc.Users.Messages.List(s.user).
			Q(query).
			MaxResults(int64(min(maxCount-len(ids), maxPageSize))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			if len(ids) >= maxCount {
				break
			}
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, nil
}

// detail fetches and parses one message, consulting the cache first
func (s *GmailSource) detail(ctx context.Context, svc *gmail.Service, id string) (model.Item, error) {
	key := cache.ItemKey(s.user, id)

	var item model.Item
	if s.cache != nil && cache.GetJSON(s.cache, key, &item) {
		metrics.IncrementDetailFetch("cached")
		return item, nil
	}

	msg, err := svc.Users.Messages.Get(s.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		metrics.IncrementDetailFetch("failed")
		return model.Item{}, fmt.Errorf("%w: %s: %w", model.ErrItemDetail, id, err)
	}

	item, err = ParseMessage(msg)
	if err != nil {
		metrics.IncrementDetailFetch("failed")
		return model.Item{}, fmt.Errorf("%w: %s: %w", model.ErrItemDetail, id, err)
	}
	metrics.IncrementDetailFetch("ok")

	if s.cache != nil {
		if err := cache.SetJSON(s.cache, key, item, s.cacheTTL); err != nil {
			s.logger.Debug("cache write failed", zap.String("id", id), zap.Error(err))
		}
	}
	return item, nil
}

type detailJob struct {
	source *GmailSource
	svc    *gmail.Service
	id     string
}

func (j *detailJob) Execute(ctx context.Context) worker.Result {
	item, err := j.source.detail(ctx, j.svc, j.id)
	return &detailResult{id: j.id, item: item, err: err}
}

type detailResult struct {
	id   string
	item model.Item
	err  error
}

func (r *detailResult) GetError() error {
	return r.err
}
