// Package cache implements the Redis-backed query result cache. Entries are
// keyed by the request and the index version, so a rebuilt index naturally
// invalidates every stale entry without an explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/pkg/metrics"
	"github.com/feedsearch/feedsearch/pkg/redis"
)

const keyPrefix = "search:q:"

// QueryCache caches search responses in Redis and collapses concurrent
// identical requests through singleflight. A nil *QueryCache is valid and
// disables caching.
type QueryCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// New builds a QueryCache. metrics may be nil.
func New(client *redis.Client, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *QueryCache {
	return &QueryCache{client: client, ttl: ttl, metrics: m, logger: logger}
}

// GetOrCompute returns the cached response for req when present, otherwise
// runs compute exactly once per (request, index version) even under
// concurrent identical requests, stores the result, and returns it. The
// second return value reports whether the response came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req document.SearchRequest,
	indexVersion string,
	compute func() document.SearchResponse,
) (document.SearchResponse, bool) {
	if c == nil || c.client == nil {
		return compute(), false
	}

	key := cacheKey(req, indexVersion)
	if cached, err := c.client.Get(ctx, key); err == nil {
		var resp document.SearchResponse
		if jsonErr := json.Unmarshal([]byte(cached), &resp); jsonErr == nil {
			c.countHit()
			return resp, true
		}
		// Undecodable entry; drop it and fall through to recompute.
		_ = c.client.Del(ctx, key)
	} else if !redis.IsNilError(err) {
		c.logger.Warn("query cache read failed", "error", err)
	}
	c.countMiss()

	result, _, _ := c.group.Do(key, func() (any, error) {
		resp := compute()
		data, err := json.Marshal(resp)
		if err != nil {
			return resp, nil
		}
		if err := c.client.Set(ctx, key, string(data), c.ttl); err != nil {
			c.logger.Warn("query cache write failed", "error", err)
		}
		return resp, nil
	})
	return result.(document.SearchResponse), false
}

// Invalidate removes every cached search response, returning the number of
// entries deleted.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	return c.client.FlushByPattern(ctx, keyPrefix+"*")
}

func (c *QueryCache) countHit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) countMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// cacheKey derives a stable key from every request field that affects the
// response, plus the index version.
func cacheKey(req document.SearchRequest, indexVersion string) string {
	var lang, from, to string
	if req.Filters != nil {
		lang, from, to = req.Filters.Lang, req.Filters.TimeFrom, req.Filters.TimeTo
	}
	raw := fmt.Sprintf("%s|%d|%t|%s|%s|%s|%s",
		req.Query, req.TopK, req.UsePRF, lang, from, to, indexVersion)
	sum := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(sum[:])
}
