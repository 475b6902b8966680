package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// OtherBucketValue marks the aggregate bucket holding every value beyond the
// configured top-N.
const OtherBucketValue = "__OTHER__"

// DimensionValuesRequest asks for the value summary of one dimension column
// under the given filter context. The filter context participates in the
// cache key, so differently-filtered requests never share an entry.
type DimensionValuesRequest struct {
	DataSourceID int64         `json:"data_source_id"`
	Dimension    string        `json:"dimension"`
	Measure      string        `json:"measure,omitempty"`
	Frequency    string        `json:"frequency,omitempty"`
	StartDate    string        `json:"start_date,omitempty"`
	EndDate      string        `json:"end_date,omitempty"`
	PracticeUIDs []int64       `json:"practice_uids,omitempty"`
	Filters      []ChartFilter `json:"filters,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

// DimensionCache serves top-N dimension value summaries for filter dropdowns,
// cached in redis. Values beyond the top-N collapse into a single
// OtherBucketValue entry carrying the remainder count, so the summary size
// stays bounded no matter the cardinality.
//
// Summaries are derived from rows fetched through the main row cache, so the
// caller's row policy is applied before any counting, and the summary key
// covers the caller's visibility: a broad scope's summary is never served to
// a narrower one.
type DimensionCache struct {
	Rows      *DataSourceCache
	Configs   ConfigStore
	Validator *Validator
	Filter    *InMemoryFilter
	Redis     redis.UniversalClient

	ttl  time.Duration
	topN int
}

// NewDimensionCache creates a DimensionCache.
func NewDimensionCache(cfg Config, rows *DataSourceCache, configs ConfigStore, validator *Validator, filter *InMemoryFilter, rdb redis.UniversalClient) *DimensionCache {
	cfg = cfg.withDefaults()

	return &DimensionCache{
		Rows:      rows,
		Configs:   configs,
		Validator: validator,
		Filter:    filter,
		Redis:     rdb,
		ttl:       cfg.DimensionTTL,
		topN:      cfg.DimensionTopN,
	}
}

// GetDimensionValues returns the value summary for one dimension, reading
// through the redis cache. Redis failures degrade to a direct fetch.
func (d *DimensionCache) GetDimensionValues(ctx context.Context, req DimensionValuesRequest) (*DimensionValuesResult, error) {
	scope, ok := authz.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no scope in context", ErrUnauthorizedAccess)
	}

	cfg, err := d.resolveDimension(ctx, req, scope)
	if err != nil {
		return nil, err
	}

	filters, err := sanitizeFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	req.Filters = filters

	key := d.cacheKey(req, scope)

	if d.Redis != nil {
		raw, err := d.Redis.Get(ctx, key).Bytes()
		if err == nil {
			var result DimensionValuesResult
			if err := json.Unmarshal(raw, &result); err == nil {
				return d.limitResult(&result, req.Limit), nil
			}

			log.Warn(ctx, "dimension cache entry corrupt, refetching",
				log.String("key", key),
				log.Cause(err),
			)
		} else if err != redis.Nil {
			log.Warn(ctx, "dimension cache read failed, treating as miss",
				log.String("key", key),
				log.Cause(err),
			)
		}
	}

	result, err := d.queryDimensionValues(ctx, cfg, req, scope)
	if err != nil {
		return nil, err
	}

	if d.Redis != nil {
		raw, err := json.Marshal(result)
		if err == nil {
			if err := d.Redis.Set(ctx, key, raw, d.ttl).Err(); err != nil {
				log.Warn(ctx, "dimension cache write failed",
					log.String("key", key),
					log.Cause(err),
				)
			}
		}
	}

	return d.limitResult(result, req.Limit), nil
}

// InvalidateCache drops every cached summary for the data source, optionally
// narrowed to one dimension. Returns the number of entries removed.
func (d *DimensionCache) InvalidateCache(ctx context.Context, dataSourceID int64, dimension string) (int64, error) {
	if d.Redis == nil {
		return 0, nil
	}

	pattern := fmt.Sprintf("dim:%d:*", dataSourceID)
	if dimension != "" {
		pattern = fmt.Sprintf("dim:%d:%s:*", dataSourceID, dimension)
	}

	keys, err := d.Redis.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, fmt.Errorf("scan dimension cache keys: %w", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := d.Redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete dimension cache keys: %w", err)
	}

	log.Info(ctx, "dimension cache invalidated",
		log.Int64("data_source_id", dataSourceID),
		log.String("dimension", dimension),
		log.Int64("removed", removed),
	)

	return removed, nil
}

// WarmCache precomputes the unfiltered summary for every expansion dimension
// of every active data source. Dimensions warm concurrently; one dimension's
// failure does not stop the others, and all failures are reported together.
// The context must carry a scope; the scheduled worker runs under the system
// scope.
func (d *DimensionCache) WarmCache(ctx context.Context) error {
	configs, err := d.Configs.ListActiveDataSourceConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list data source configs: %w", err)
	}

	started := time.Now()

	var (
		mu     sync.Mutex
		merr   *multierror.Error
		warmed int
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)

	for _, cfg := range configs {
		for _, dim := range cfg.ExpansionDimensions() {
			eg.Go(func() error {
				_, err := d.GetDimensionValues(egCtx, DimensionValuesRequest{
					DataSourceID: cfg.ID,
					Dimension:    dim,
				})

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					merr = multierror.Append(merr, fmt.Errorf("warm data source %d dimension %q: %w", cfg.ID, dim, err))
				} else {
					warmed++
				}

				return nil
			})
		}
	}

	_ = eg.Wait()

	var failed int
	if merr != nil {
		failed = len(merr.Errors)
	}

	log.Info(ctx, "dimension cache warm completed",
		log.Int("warmed", warmed),
		log.Int("failed", failed),
		log.Duration("elapsed", time.Since(started)),
	)

	return merr.ErrorOrNil()
}

func (d *DimensionCache) resolveDimension(ctx context.Context, req DimensionValuesRequest, scope authz.Scope) (*DataSourceConfig, error) {
	cfg, err := d.Configs.GetDataSourceConfigByID(ctx, req.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("load data source config: %w", err)
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w: data source %d", ErrConfigurationMissing, req.DataSourceID)
	}

	if _, err := d.Validator.ValidateTable(ctx, cfg.Table, cfg.Schema, cfg); err != nil {
		return nil, err
	}

	if err := d.Validator.ValidateField(ctx, req.Dimension, cfg.Table, cfg.Schema, cfg); err != nil {
		return nil, err
	}

	if _, ok := cfg.AllowedFilterFields()[req.Dimension]; !ok {
		log.Error(ctx, "analytics security: dimension not filterable",
			log.String("dimension", req.Dimension),
			log.Int64("data_source_id", req.DataSourceID),
		)

		return nil, fmt.Errorf("%w: dimension %q", ErrUnauthorizedAccess, req.Dimension)
	}

	if err := d.Validator.ValidateFilterFields(ctx, req.Filters, req.DataSourceID, scope); err != nil {
		return nil, err
	}

	return cfg, nil
}

// cacheKey is dim:{dataSourceID}:{dimension}:{hash}. The hash covers every
// filter-affecting request field plus the caller's row visibility.
func (d *DimensionCache) cacheKey(req DimensionValuesRequest, scope authz.Scope) string {
	var sb strings.Builder

	sb.WriteString(hashFilterParams(req.Measure, req.Frequency, req.StartDate, req.EndDate, req.PracticeUIDs, req.Filters))
	sb.WriteByte('|')
	sb.WriteString(scopeFingerprint(scope))

	return fmt.Sprintf("dim:%d:%s:%016x", req.DataSourceID, req.Dimension, xxhash.Sum64String(sb.String()))
}

// scopeFingerprint is a stable digest of the fields that determine row
// visibility. All unrestricted scopes share one fingerprint.
func scopeFingerprint(scope authz.Scope) string {
	if scope.AllowsAllRows() {
		return "all"
	}

	var sb strings.Builder

	sb.WriteString(string(scope.Permission))
	sb.WriteByte('|')

	for _, uid := range sortedIDs(scope.AccessiblePractices) {
		sb.WriteString(strconv.FormatInt(uid, 10))
		sb.WriteByte(',')
	}

	sb.WriteByte('|')

	for _, uid := range sortedIDs(scope.AccessibleProviders) {
		sb.WriteString(strconv.FormatInt(uid, 10))
		sb.WriteByte(',')
	}

	return sb.String()
}

func sortedIDs(ids []int64) []int64 {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted
}

// queryDimensionValues fetches the data source rows through the main row
// cache, filters them in memory, and counts distinct dimension values. The
// row cache applies the caller's row policy before the rows reach us.
func (d *DimensionCache) queryDimensionValues(ctx context.Context, cfg *DataSourceConfig, req DimensionValuesRequest, scope authz.Scope) (*DimensionValuesResult, error) {
	fetched, err := d.Rows.FetchDataSource(ctx, CacheQueryParams{
		DataSourceID: req.DataSourceID,
		Schema:       cfg.Schema,
		Table:        cfg.Table,
		Measure:      req.Measure,
		Frequency:    req.Frequency,
	}, scope, false, nil)
	if err != nil {
		return nil, err
	}

	rows, err := d.Filter.ApplyDateRangeFilter(ctx, fetched.Rows, req.DataSourceID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	rows = d.Filter.ApplyAdvancedFilters(rows, req.Filters)

	if len(req.PracticeUIDs) > 0 {
		rows = lo.Filter(rows, func(row Row, _ int) bool {
			uid, err := cast.ToInt64E(row["practice_uid"])
			return err == nil && lo.Contains(req.PracticeUIDs, uid)
		})
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[cast.ToString(row[req.Dimension])]++
	}

	entries := lo.MapToSlice(counts, func(value string, count int) DimensionValue {
		return DimensionValue{Value: value, Label: value, RecordCount: count}
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RecordCount != entries[j].RecordCount {
			return entries[i].RecordCount > entries[j].RecordCount
		}

		return entries[i].Value < entries[j].Value
	})

	return d.summarize(entries, req.Limit), nil
}

// summarize builds the bounded summary: the top-N distinct values by count,
// with everything else aggregated into one trailing other bucket.
func (d *DimensionCache) summarize(entries []DimensionValue, limit int) *DimensionValuesResult {
	topN := d.topN
	if limit > topN {
		topN = limit
	}

	result := &DimensionValuesResult{TotalUniqueValues: len(entries)}

	for _, entry := range entries {
		if len(result.Values) < topN {
			result.Values = append(result.Values, entry)
			continue
		}

		result.HasMore = true
		result.OtherRecordCount += entry.RecordCount
	}

	if result.HasMore {
		result.Values = append(result.Values, DimensionValue{
			Value:       OtherBucketValue,
			Label:       "Other",
			RecordCount: result.OtherRecordCount,
			IsOther:     true,
		})
	}

	return result
}

// limitResult trims a (possibly cached, larger) summary down to the caller's
// requested limit, re-folding trimmed values into the other bucket.
func (d *DimensionCache) limitResult(result *DimensionValuesResult, limit int) *DimensionValuesResult {
	if limit <= 0 || len(result.Values) <= limit {
		return result
	}

	trimmed := &DimensionValuesResult{
		HasMore:           true,
		OtherRecordCount:  result.OtherRecordCount,
		TotalUniqueValues: result.TotalUniqueValues,
	}

	for i, value := range result.Values {
		if value.IsOther {
			break
		}

		if i < limit {
			trimmed.Values = append(trimmed.Values, value)
			continue
		}

		trimmed.OtherRecordCount += value.RecordCount
	}

	trimmed.Values = append(trimmed.Values, DimensionValue{
		Value:       OtherBucketValue,
		Label:       "Other",
		RecordCount: trimmed.OtherRecordCount,
		IsOther:     true,
	})

	return trimmed
}
