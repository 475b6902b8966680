package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// Orchestrator is the public entry point for analytics queries. It routes
// each request to the cached path or the legacy direct-SQL path, fans out
// multi-series and period-comparison requests, and applies the per-request
// deadline.
type Orchestrator struct {
	Executor  *Executor
	Cache     *DataSourceCache
	Configs   ConfigStore
	Validator *Validator
	Filter    *InMemoryFilter

	useCache       bool
	requestTimeout time.Duration
}

// NewOrchestrator creates an Orchestrator from the wired collaborators.
func NewOrchestrator(cfg Config, executor *Executor, cache *DataSourceCache, configs ConfigStore, validator *Validator, filter *InMemoryFilter) *Orchestrator {
	cfg = cfg.withDefaults()

	return &Orchestrator{
		Executor:       executor,
		Cache:          cache,
		Configs:        configs,
		Validator:      validator,
		Filter:         filter,
		useCache:       cfg.UseCache,
		requestTimeout: cfg.RequestTimeout,
	}
}

// QueryMeasures executes one analytics query for the caller's scope.
// Security and configuration failures surface as errors; cache backend
// trouble never does. Any unexpected failure is logged with the full request
// shape and wrapped as ErrQueryFailed so callers see a stable contract.
func (o *Orchestrator) QueryMeasures(ctx context.Context, params QueryParams) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	scope, ok := authz.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no scope in context", ErrUnauthorizedAccess)
	}

	if params.DataSourceID == 0 {
		return nil, fmt.Errorf("%w: data_source_id is required", ErrConfigurationMissing)
	}

	result, err := o.execute(ctx, params, scope, NewRequestCache())
	if err != nil {
		if isHardError(err) {
			return nil, err
		}

		log.Error(ctx, "analytics query failed",
			log.Int64("data_source_id", params.DataSourceID),
			log.String("measure", params.Measure),
			log.String("frequency", params.Frequency),
			log.String("start_date", params.StartDate),
			log.String("end_date", params.EndDate),
			log.Int("advanced_filters", len(params.AdvancedFilters)),
			log.Int("series", len(params.MultipleSeries)),
			log.Cause(err),
		)

		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, err)
	}

	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, params QueryParams, scope authz.Scope, requestCache *RequestCache) (*QueryResult, error) {
	if len(params.MultipleSeries) > 0 {
		return o.executeMultiSeries(ctx, params, scope, requestCache)
	}

	if params.PeriodComparison != nil && params.PeriodComparison.Enabled {
		return o.executePeriodComparison(ctx, params, scope, requestCache)
	}

	if !o.useCache {
		return o.Executor.Execute(ctx, params, scope)
	}

	return o.executeCached(ctx, params, scope, requestCache)
}

// executeMultiSeries runs one sub-query per series concurrently and merges
// the results, tagging every row with its series identity. Sub-queries see
// the same request cache so series sharing a measure fetch the dataset once.
func (o *Orchestrator) executeMultiSeries(ctx context.Context, params QueryParams, scope authz.Scope, requestCache *RequestCache) (*QueryResult, error) {
	started := time.Now()
	results := make([]*QueryResult, len(params.MultipleSeries))

	eg, egCtx := errgroup.WithContext(ctx)

	for i, series := range params.MultipleSeries {
		eg.Go(func() error {
			seriesParams := params
			seriesParams.Measure = series.Measure
			seriesParams.MultipleSeries = nil

			result, err := o.execute(egCtx, seriesParams, scope, requestCache)
			if err != nil {
				return fmt.Errorf("series %q: %w", series.ID, err)
			}

			result.Data = tagSeriesRows(result.Data, series)
			results[i] = result

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return mergeResults(results, started), nil
}

// executePeriodComparison runs the current and comparison date ranges
// concurrently and merges them, tagging rows with their period.
func (o *Orchestrator) executePeriodComparison(ctx context.Context, params QueryParams, scope authz.Scope, requestCache *RequestCache) (*QueryResult, error) {
	started := time.Now()

	comparison, err := ComputeComparisonRange(params.Frequency, params.StartDate, params.EndDate, *params.PeriodComparison)
	if err != nil {
		return nil, err
	}

	currentParams := params
	currentParams.PeriodComparison = nil

	comparisonParams := params
	comparisonParams.PeriodComparison = nil
	comparisonParams.StartDate = comparison.StartDate
	comparisonParams.EndDate = comparison.EndDate

	results := make([]*QueryResult, 2)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		result, err := o.execute(egCtx, currentParams, scope, requestCache)
		if err != nil {
			return fmt.Errorf("current period: %w", err)
		}

		result.Data = tagPeriodRows(result.Data, PeriodTypeCurrent, fmt.Sprintf("%s to %s", params.StartDate, params.EndDate))
		results[0] = result

		return nil
	})
	eg.Go(func() error {
		result, err := o.execute(egCtx, comparisonParams, scope, requestCache)
		if err != nil {
			return fmt.Errorf("comparison period: %w", err)
		}

		result.Data = tagPeriodRows(result.Data, PeriodTypeComparison, comparison.Label)
		results[1] = result

		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return mergeResults(results, started), nil
}

// executeCached fetches the raw dataset through the row cache, then applies
// date-range and advanced filters in memory. Row-level access control is
// applied by the cache collaborator before rows reach this function.
func (o *Orchestrator) executeCached(ctx context.Context, params QueryParams, scope authz.Scope, requestCache *RequestCache) (*QueryResult, error) {
	started := time.Now()

	cfg, err := o.Configs.GetDataSourceConfigByID(ctx, params.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("load data source config: %w", err)
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w: data source %d", ErrConfigurationMissing, params.DataSourceID)
	}

	cfg, err = o.Validator.ValidateTable(ctx, cfg.Table, cfg.Schema, cfg)
	if err != nil {
		return nil, err
	}

	if err := o.Validator.ValidateFilterFields(ctx, params.AdvancedFilters, params.DataSourceID, scope); err != nil {
		return nil, err
	}

	filters, err := sanitizeFilters(params.AdvancedFilters)
	if err != nil {
		return nil, err
	}

	fetched, err := o.Cache.FetchDataSource(ctx, CacheQueryParams{
		DataSourceID: params.DataSourceID,
		Schema:       cfg.Schema,
		Table:        cfg.Table,
		Measure:      params.Measure,
		PracticeUID:  params.PracticeUID,
		ProviderUID:  params.ProviderUID,
		Frequency:    params.Frequency,
	}, scope, params.BypassCache, requestCache)
	if err != nil {
		return nil, err
	}

	rows, err := o.Filter.ApplyDateRangeFilter(ctx, fetched.Rows, params.DataSourceID, params.StartDate, params.EndDate)
	if err != nil {
		return nil, err
	}

	rows = o.Filter.ApplyAdvancedFilters(rows, filters)

	accessor := NewMeasureAccessor(cfg)

	return &QueryResult{
		Data:        rows,
		TotalCount:  accessor.TotalCount(rows),
		QueryTimeMs: time.Since(started).Milliseconds(),
		CacheHit:    fetched.CacheHit,
	}, nil
}

// sanitizeFilters returns a sanitized copy of the filters; the originals are
// never mutated.
func sanitizeFilters(filters []ChartFilter) ([]ChartFilter, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	out := make([]ChartFilter, 0, len(filters))

	for _, filter := range filters {
		value, err := SanitizeValue(filter.Value, filter.Operator)
		if err != nil {
			return nil, err
		}

		filter.Value = value
		out = append(out, filter)
	}

	return out, nil
}

// isHardError reports whether the error is a deliberate, typed failure that
// must surface to the caller untranslated.
func isHardError(err error) bool {
	return errors.Is(err, ErrUnauthorizedAccess) ||
		errors.Is(err, ErrConfigurationMissing) ||
		errors.Is(err, ErrInvalidFilterShape)
}
