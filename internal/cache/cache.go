package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ItemKey generates a cache key for a mail message id.
// The user is part of the key so two mailboxes never share entries.
func ItemKey(user, messageID string) string {
	hash := sha256.Sum256([]byte(user + "\x00" + messageID))
	return "applytrail:v1:item:" + hex.EncodeToString(hash[:])
}

// GetJSON decodes a cached JSON value into v. Undecodable entries are
// treated as misses and dropped.
func GetJSON(c Cache, key string, v any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(key)
		return false
	}
	return true
}

// SetJSON encodes v as JSON and stores it
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(key, data, ttl)
}
