// Package cache stores remote catalog responses with a per-entry TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// SearchTTL is how long catalog search results stay cached (72 hours)
	SearchTTL = 72 * time.Hour
	// DetailTTL is how long work and edition lookups stay cached (30 days)
	DetailTTL = 30 * 24 * time.Hour

	keyPrefix = "books:"
)

// Store is a key/value store with per-entry expiry.
type Store interface {
	// Get returns the stored bytes and true, or false when the key is
	// missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites the entry for key. Entries are never partially updated.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Clearer is implemented by stores that support bulk eviction.
type Clearer interface {
	ClearExpired(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
}

// ProducerFunc computes a value on a cache miss.
type ProducerFunc[T any] func(ctx context.Context) (T, error)

// Key derives a cache key from an operation name and a query. The query is
// trimmed but its case is kept. Extra parameters are appended to the hashed
// string in order.
func Key(operation, query string, extra ...string) string {
	var b strings.Builder
	b.WriteString(operation)
	b.WriteByte(':')
	b.WriteString(strings.TrimSpace(query))
	for _, e := range extra {
		b.WriteByte(':')
		b.WriteString(e)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached value for key or runs produce and caches its
// result for ttl. The second return value reports a cache hit.
//
// There is no lock around produce: two callers missing on the same key at
// the same time both run it and the later Set wins. Producers must be
// idempotent. A producer error is returned as is and nothing is stored.
func GetOrCompute[T any](ctx context.Context, store Store, key string, ttl time.Duration, produce ProducerFunc[T]) (T, bool, error) {
	var zero T

	if store == nil {
		data, err := produce(ctx)
		return data, false, err
	}

	cached, ok, err := store.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("Cache read failed, computing directly", "key", key, "error", err)
	case ok:
		var result T
		if err := json.Unmarshal(cached, &result); err == nil {
			slog.Debug("Cache hit", "key", key)
			return result, true, nil
		}
		slog.Warn("Failed to unmarshal cached data, will recompute", "key", key, "error", err)
	}

	slog.Debug("Cache miss, fetching data", "key", key)
	data, err := produce(ctx)
	if err != nil {
		return zero, false, err
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal data for caching", "key", key, "error", err)
		return data, false, nil
	}
	if err := store.Set(ctx, key, encoded, ttl); err != nil {
		// caching failure never fails the caller
		slog.Warn("Failed to cache data", "key", key, "error", err)
	} else {
		slog.Debug("Data cached successfully", "key", key, "ttl", ttl)
	}

	return data, false, nil
}

// Lookup decodes a cached value without computing anything on a miss.
func Lookup[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var result T
	if store == nil {
		return result, false, nil
	}
	cached, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return result, false, err
	}
	if err := json.Unmarshal(cached, &result); err != nil {
		return result, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return result, true, nil
}
