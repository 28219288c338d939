package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSeenStore keeps the seen set in a Redis set
type RedisSeenStore struct {
	rdb *redis.Client
	key string
}

// NewRedisSeenStore creates a Redis-backed seen store
func NewRedisSeenStore(rdb *redis.Client, key string) *RedisSeenStore {
	if key == "" {
		key = "applytrail:seen"
	}
	return &RedisSeenStore{rdb: rdb, key: key}
}

// Contains reports whether id has been attempted
func (s *RedisSeenStore) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// MarkMany adds ids; SADD ignores members already present
func (s *RedisSeenStore) MarkMany(ctx context.Context, ids []string) error {
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return nil
	}

	if err := s.rdb.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Clear deletes the set
func (s *RedisSeenStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Count returns the set cardinality
func (s *RedisSeenStore) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return int(n), nil
}

// Snapshot returns every member
func (s *RedisSeenStore) Snapshot(ctx context.Context) (map[string]struct{}, error) {
	members, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}
