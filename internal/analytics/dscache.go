package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/store"
	"golang.org/x/sync/singleflight"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
	"github.com/clinichub/clinichub/internal/pkg/xcache"
)

// FetchResult is the cache collaborator's contract: the rows visible to the
// caller's scope plus cache-hit telemetry.
type FetchResult struct {
	Rows     []Row
	CacheHit bool
}

// RequestCache deduplicates identical sub-fetches within one logical
// request (e.g. the same measure requested by two series). Advisory: it is
// an optimization, not a correctness requirement.
type RequestCache struct {
	mu      sync.Mutex
	results map[string]*FetchResult
}

// NewRequestCache creates an empty request-scoped cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{results: make(map[string]*FetchResult)}
}

func (c *RequestCache) get(key string) (*FetchResult, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.results[key]

	return result, ok
}

func (c *RequestCache) put(key string, result *FetchResult) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = result
}

// DataSourceCache caches raw analytics row sets keyed by data source plus
// the explicit chart-level filter fingerprint. Cached entries are raw
// (unscoped); the caller's row policy is applied in-memory after every
// fetch, so one cached dataset serves callers with different visibility.
//
// Cache backend failures degrade to "always miss" and are logged, never
// propagated: availability over consistency for caching.
type DataSourceCache struct {
	Query   *QueryService
	Configs ConfigStore
	Cache   xcache.Cache[[]Row]
	Filter  *InMemoryFilter

	rowTTL time.Duration
	sf     singleflight.Group
}

// NewDataSourceCache creates a DataSourceCache. The row TTL bounds staleness
// of the raw row sets.
func NewDataSourceCache(query *QueryService, configs ConfigStore, cache xcache.Cache[[]Row], filter *InMemoryFilter, rowTTL time.Duration) *DataSourceCache {
	if rowTTL <= 0 {
		rowTTL = 15 * time.Minute
	}

	return &DataSourceCache{
		Query:   query,
		Configs: configs,
		Cache:   cache,
		Filter:  filter,
		rowTTL:  rowTTL,
	}
}

// FetchDataSource returns the scoped rows for the given cache params,
// reading through the cache. Concurrent fetches for the same key execute
// once. The returned rows have the caller's row policy already applied.
func (c *DataSourceCache) FetchDataSource(ctx context.Context, params CacheQueryParams, scope authz.Scope, bypassCache bool, requestCache *RequestCache) (*FetchResult, error) {
	key := "ds:" + params.Fingerprint()

	if cached, ok := requestCache.get(key); ok && !bypassCache {
		return cached, nil
	}

	if !bypassCache {
		rows, err := c.Cache.Get(ctx, key)
		if err == nil {
			result := &FetchResult{Rows: c.Filter.ApplyScope(rows, scope), CacheHit: true}
			requestCache.put(key, result)

			return result, nil
		}

		if !isCacheMiss(err) {
			log.Warn(ctx, "analytics row cache read failed, treating as miss",
				log.String("key", key),
				log.Cause(err),
			)
		}
	}

	value, err, _ := c.sf.Do(key, func() (any, error) {
		return c.loadRows(ctx, params, key)
	})
	if err != nil {
		return nil, err
	}

	rows, _ := value.([]Row)

	result := &FetchResult{Rows: c.Filter.ApplyScope(rows, scope), CacheHit: false}
	requestCache.put(key, result)

	return result, nil
}

// Invalidate drops the cached row set for the given params, reporting
// whether an entry existed. On a backend read failure the delete is still
// attempted and existence is reported as unknown (false).
func (c *DataSourceCache) Invalidate(ctx context.Context, params CacheQueryParams) (bool, error) {
	key := "ds:" + params.Fingerprint()

	if _, err := c.Cache.Get(ctx, key); err != nil {
		if isCacheMiss(err) {
			return false, nil
		}

		return false, c.Cache.Delete(ctx, key)
	}

	return true, c.Cache.Delete(ctx, key)
}

func (c *DataSourceCache) loadRows(ctx context.Context, params CacheQueryParams, key string) ([]Row, error) {
	cfg, err := c.Configs.GetDataSourceConfigByID(ctx, params.DataSourceID)
	if err != nil {
		return nil, err
	}

	rows, err := c.Query.FetchRows(ctx, cfg, params)
	if err != nil {
		return nil, err
	}

	if err := c.Cache.Set(ctx, key, rows, xcache.WithExpiration(c.rowTTL)); err != nil {
		log.Warn(ctx, "analytics row cache write failed",
			log.String("key", key),
			log.Cause(err),
		)
	}

	return rows, nil
}

// isCacheMiss distinguishes an ordinary miss from a backend failure.
func isCacheMiss(err error) bool {
	var notFound *store.NotFound
	return errors.As(err, &notFound)
}
