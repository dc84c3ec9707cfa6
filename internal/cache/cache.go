// Package cache stores rendered evaluation reports keyed by the content
// of the inputs that produced them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/codebook/internal/model"
)

const keyPrefix = "codebook:v1:"

// Cache is a byte store with per-entry expiry. A zero ttl means the
// store's default.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key hashes the given parts into a cache key. Parts are length-prefixed so
// that ("ab", "c") and ("a", "bc") differ.
func Key(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write(p)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// EvaluationKey identifies a score run: both input documents and every
// option that changes the numbers.
func EvaluationKey(annotated, groundTruth []byte, opts model.ScoringConfig) string {
	o, _ := json.Marshal(opts)
	return Key([]byte("evaluate"), annotated, groundTruth, o)
}

// GetJSON decodes a cached value into v. A corrupt entry is a miss.
func GetJSON(c Cache, key string, v any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.Set(key, data, ttl)
}

// New builds the cache described by cfg: memory in front of disk, or a
// no-op store when caching is disabled.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }
func (Nop) Set(string, []byte, time.Duration) error { return nil }
func (Nop) Delete(string) error { return nil }
func (Nop) Clear() error { return nil }
