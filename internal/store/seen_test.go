package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
)

func exerciseSeenStore(t *testing.T, s SeenStore) {
	t.Helper()
	ctx := context.Background()

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	ids := []string{"a", "b", "c"}
	if err := s.MarkMany(ctx, ids); err != nil {
		t.Fatalf("MarkMany failed: %v", err)
	}
	first, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if first != 3 {
		t.Fatalf("Expected 3, got %d", first)
	}

	// marking the same ids again leaves the count unchanged
	if err := s.MarkMany(ctx, ids); err != nil {
		t.Fatalf("MarkMany failed: %v", err)
	}
	second, _ := s.Count(ctx)
	if second != first {
		t.Errorf("Expected idempotent MarkMany, count went %d -> %d", first, second)
	}

	ok, err := s.Contains(ctx, "b")
	if err != nil || !ok {
		t.Errorf("Expected b to be seen (err=%v)", err)
	}
	ok, _ = s.Contains(ctx, "z")
	if ok {
		t.Error("Expected z to be unseen")
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 3 {
		t.Errorf("Expected snapshot of 3, got %d", len(snap))
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Expected empty set after Clear, got %d", n)
	}
}

func TestFileSeenStore(t *testing.T) {
	exerciseSeenStore(t, NewFileSeenStore(filepath.Join(t.TempDir(), "seen.json")))
}

func TestFileSeenStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.json")

	if err := NewFileSeenStore(path).MarkMany(ctx, []string{"x", "y", "x", ""}); err != nil {
		t.Fatalf("MarkMany failed: %v", err)
	}

	reopened := NewFileSeenStore(path)
	n, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 persisted ids, got %d", n)
	}
}

func TestFileSeenStore_SnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewFileSeenStore(filepath.Join(t.TempDir(), "seen.json"))
	_ = s.MarkMany(ctx, []string{"a"})

	snap, _ := s.Snapshot(ctx)
	snap["b"] = struct{}{}

	if ok, _ := s.Contains(ctx, "b"); ok {
		t.Error("Mutating a snapshot must not change the store")
	}
}

func TestFileSeenStore_FailedWriteLeavesSetUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	s := NewFileSeenStore(filepath.Join(dir, SeenFile))

	if err := s.MarkMany(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}

	// a regular file where the directory should be makes the next write fail
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkMany(ctx, []string{"b"}); err == nil {
		t.Fatal("Expected MarkMany to fail")
	}
	if ok, _ := s.Contains(ctx, "b"); ok {
		t.Error("b was never persisted and must not be seen")
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Expected count 1 after failed write, got %d", n)
	}

	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkMany(ctx, []string{"b", "b"}); err != nil {
		t.Fatalf("MarkMany failed: %v", err)
	}

	reopened := NewFileSeenStore(filepath.Join(dir, SeenFile))
	if n, _ := reopened.Count(ctx); n != 2 {
		t.Errorf("Expected a and b on disk, got %d ids", n)
	}
}

func TestRedisSeenStore(t *testing.T) {
	addr := os.Getenv("APPLYTRAIL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APPLYTRAIL_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	key := "applytrail:test:" + t.Name()
	defer rdb.Del(context.Background(), key)

	exerciseSeenStore(t, NewRedisSeenStore(rdb, key))
}
