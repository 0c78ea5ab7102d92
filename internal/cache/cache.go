// Package cache implements the query result cache that sits in front of
// Manager.DoSearch, adapting internal/searcher/cache's Redis +
// singleflight design to this domain's search parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/monishk/shardsearch/internal/collection"
	"github.com/monishk/shardsearch/pkg/config"
	"github.com/monishk/shardsearch/pkg/metrics"
	pkgredis "github.com/monishk/shardsearch/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// QueryCache caches collection.SearchResult by a stable hash of the
// requesting collection and its full parameter map, with singleflight
// collapsing concurrent identical misses into one shard fan-out.
type QueryCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	m      *metrics.Metrics
}

func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: slog.Default().With("component", "query-cache"),
		m:      m,
	}
}

func (c *QueryCache) Get(ctx context.Context, collName string, params map[string]string) (*collection.SearchResult, bool) {
	key := buildKey(collName, params)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		c.recordMiss()
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result collection.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, collName string, params map[string]string, result *collection.SearchResult) {
	key := buildKey(collName, params)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for (collName, params), computing
// and caching it via compute on a miss. Concurrent identical requests
// share one compute call.
func (c *QueryCache) GetOrCompute(ctx context.Context, collName string, params map[string]string, compute func() (*collection.SearchResult, error)) (*collection.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, collName, params); ok {
		return result, true, nil
	}
	key := buildKey(collName, params)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, collName, params); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, collName, params, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*collection.SearchResult), false, nil
}

// InvalidateCollection drops every cached result for collName, called
// after any document add/remove so a stale cache entry never outlives the
// data it summarizes.
func (c *QueryCache) InvalidateCollection(ctx context.Context, collName string) error {
	pattern := keyPrefix + collName + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", collName, err)
	}
	c.logger.Debug("cache invalidate", "collection", collName, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) recordHit() {
	if c.m != nil {
		c.m.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	if c.m != nil {
		c.m.CacheMissesTotal.Inc()
	}
}

// buildKey hashes collName plus every param in a stable (sorted) order, so
// two logically identical requests always hash to the same key regardless
// of map iteration order.
func buildKey(collName string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(collName)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, collName, hash[:16])
}
