// Package cache provides the Redis-backed response cache for suggestion
// requests. The cache is an optimization only; every operation degrades to
// a miss on error so Redis outages never fail a request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsdesk/tagsuggest/internal/suggest"
)

// DefaultTTL is how long a cached suggestion response stays valid.
const DefaultTTL = 10 * time.Minute

// SuggestionCache stores serialized suggestion results keyed by request
// identity. Keys embed the corpus generation, so a reload implicitly
// invalidates every older entry.
type SuggestionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSuggestionCache wraps an existing Redis client. A non-positive TTL
// falls back to DefaultTTL.
func NewSuggestionCache(rdb *redis.Client, ttl time.Duration) *SuggestionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SuggestionCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key for a request. Two requests share a key only
// when the corpus generation, model, input text, and every ranking option
// agree.
func Key(generation uint64, model, text string, opts suggest.Options) string {
	minScore := -1.0
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d|%v|%t|", generation, model, opts.K, minScore, opts.UseReranker)
	h.Write([]byte(text))
	return "tagsuggest:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, reporting whether it was found.
func (c *SuggestionCache) Get(ctx context.Context, key string) (*suggest.Result, bool, error) {
	ba, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result suggest.Result
	if err := json.Unmarshal(ba, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

// Set stores a result under key with the cache TTL.
func (c *SuggestionCache) Set(ctx context.Context, key string, result *suggest.Result) error {
	ba, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, ba, c.ttl).Err()
}

// Ping checks connectivity for the health endpoint.
func (c *SuggestionCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
