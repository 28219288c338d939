package cache

import (
	"errors"
	"time"

	"github.com/ppiankov/applytrail/internal/metrics"
)

// LayeredCache holds fetched message details in memory for the session and
// on disk across runs. The disk layer owns expiry; memory entries never
// outlive the session TTL.
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache
}

// NewLayeredCache creates the message cache
func NewLayeredCache(sessionTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(sessionTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

// Get checks memory, then disk. Disk hits are promoted to memory.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		metrics.IncrementCacheLookup("memory", "hit")
		return val, true
	}

	val, found := c.disk.Get(key)
	if !found {
		metrics.IncrementCacheLookup("disk", "miss")
		return nil, false
	}
	metrics.IncrementCacheLookup("disk", "hit")
	_ = c.memory.Set(key, val, 0)
	return val, true
}

// Set writes to disk first; a message that only made it to memory would be
// fetched again by the next process anyway.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.disk.Set(key, value, ttl); err != nil {
		return err
	}
	return c.memory.Set(key, value, 0)
}

func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}

// Prune drops expired entries from the disk layer
func (c *LayeredCache) Prune() (int, error) {
	return c.disk.Prune()
}
