package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// Executor is the legacy direct-SQL path: it resolves dynamic column names,
// embeds the row policy directly in the WHERE clause, executes the query,
// and handles multi-series and period-comparison fan-out by recursive
// delegation.
type Executor struct {
	Query     *QueryService
	Configs   ConfigStore
	Validator *Validator
	Builder   *Builder
}

// NewExecutor creates an Executor.
func NewExecutor(query *QueryService, configs ConfigStore, validator *Validator, builder *Builder) *Executor {
	return &Executor{
		Query:     query,
		Configs:   configs,
		Validator: validator,
		Builder:   builder,
	}
}

// Execute runs a legacy-path query. Multi-series and period-comparison
// requests fan out into concurrently executed sub-queries; one sub-query's
// failure aborts the siblings.
func (e *Executor) Execute(ctx context.Context, params QueryParams, scope authz.Scope) (*QueryResult, error) {
	if len(params.MultipleSeries) > 0 {
		return e.executeMultiSeries(ctx, params, scope)
	}

	if params.PeriodComparison != nil && params.PeriodComparison.Enabled {
		return e.executePeriodComparison(ctx, params, scope)
	}

	return e.executeSingle(ctx, params, scope)
}

func (e *Executor) executeMultiSeries(ctx context.Context, params QueryParams, scope authz.Scope) (*QueryResult, error) {
	started := time.Now()
	results := make([]*QueryResult, len(params.MultipleSeries))

	eg, egCtx := errgroup.WithContext(ctx)

	for i, series := range params.MultipleSeries {
		eg.Go(func() error {
			seriesParams := params
			seriesParams.Measure = series.Measure
			seriesParams.MultipleSeries = nil

			result, err := e.Execute(egCtx, seriesParams, scope)
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

func (e *Executor) executePeriodComparison(ctx context.Context, params QueryParams, scope authz.Scope) (*QueryResult, error) {
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
		result, err := e.Execute(egCtx, currentParams, scope)
		if err != nil {
			return fmt.Errorf("current period: %w", err)
		}

		result.Data = tagPeriodRows(result.Data, PeriodTypeCurrent, fmt.Sprintf("%s to %s", params.StartDate, params.EndDate))
		results[0] = result

		return nil
	})
	eg.Go(func() error {
		result, err := e.Execute(egCtx, comparisonParams, scope)
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

func (e *Executor) executeSingle(ctx context.Context, params QueryParams, scope authz.Scope) (*QueryResult, error) {
	started := time.Now()

	cfg, err := e.resolveConfig(ctx, params)
	if err != nil {
		return nil, err
	}

	cfg, err = e.Validator.ValidateTable(ctx, cfg.Table, cfg.Schema, cfg)
	if err != nil {
		return nil, err
	}

	filters, err := e.chartFilters(ctx, cfg, params)
	if err != nil {
		return nil, err
	}

	clause, err := e.Builder.BuildWhereClause(ctx, filters, scope, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %q.%q`, cfg.Schema, cfg.Table)
	if !clause.Empty() {
		query += " WHERE " + clause.SQL
	}

	rows, err := e.Query.Select(ctx, query, clause.Args...)
	if err != nil {
		return nil, err
	}

	accessor := NewMeasureAccessor(cfg)

	return &QueryResult{
		Data:        rows,
		TotalCount:  accessor.TotalCount(rows),
		QueryTimeMs: time.Since(started).Milliseconds(),
		CacheHit:    false,
	}, nil
}

func (e *Executor) resolveConfig(ctx context.Context, params QueryParams) (*DataSourceConfig, error) {
	if params.DataSourceID == 0 {
		return nil, fmt.Errorf("%w: data_source_id is required", ErrConfigurationMissing)
	}

	cfg, err := e.Configs.GetDataSourceConfigByID(ctx, params.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("load data source config: %w", err)
	}

	if cfg == nil {
		log.Error(ctx, "analytics: data source config not found",
			log.Int64("data_source_id", params.DataSourceID),
		)

		return nil, fmt.Errorf("%w: data source %d", ErrConfigurationMissing, params.DataSourceID)
	}

	return cfg, nil
}

// chartFilters converts the request's explicit parameters plus advanced
// filters into validated chart filters with dynamically resolved column
// names.
func (e *Executor) chartFilters(ctx context.Context, cfg *DataSourceConfig, params QueryParams) ([]ChartFilter, error) {
	var filters []ChartFilter

	if params.Measure != "" && cfg.Type == SourceMeasureBased {
		filters = append(filters, ChartFilter{Field: "measure", Operator: OpEq, Value: params.Measure})
	}

	if params.Frequency != "" && cfg.HasColumn("frequency") {
		filters = append(filters, ChartFilter{Field: "frequency", Operator: OpEq, Value: params.Frequency})
	}

	if params.PracticeUID != nil {
		filters = append(filters, ChartFilter{Field: "practice_uid", Operator: OpEq, Value: *params.PracticeUID})
	}

	if params.ProviderUID != nil {
		filters = append(filters, ChartFilter{Field: "provider_uid", Operator: OpEq, Value: *params.ProviderUID})
	}

	if dateColumn, ok := cfg.DateColumn(); ok && params.StartDate != "" && params.EndDate != "" {
		filters = append(filters, ChartFilter{
			Field:    dateColumn,
			Operator: OpBetween,
			Value:    []any{params.StartDate, params.EndDate},
		})
	}

	allowed := cfg.AllowedFilterFields()

	for _, filter := range params.AdvancedFilters {
		if err := e.Validator.ValidateOperator(ctx, filter.Operator); err != nil {
			return nil, err
		}

		if _, ok := allowed[filter.Field]; !ok {
			log.Error(ctx, "analytics security: filter field not authorized",
				log.String("field", filter.Field),
				log.Int64("data_source_id", cfg.ID),
			)

			return nil, fmt.Errorf("%w: filter field %q", ErrUnauthorizedAccess, filter.Field)
		}

		filters = append(filters, filter)
	}

	return filters, nil
}

// The tag helpers copy each row before annotating it: on the cache path the
// row maps are shared with the cached dataset and must never be mutated.
func tagSeriesRows(rows []Row, series SeriesSpec) []Row {
	tagged := make([]Row, len(rows))

	for i, row := range rows {
		copied := make(Row, len(row)+4)
		for k, v := range row {
			copied[k] = v
		}

		copied[TagSeriesID] = series.ID
		copied[TagSeriesLabel] = series.Label
		copied[TagSeriesAggregation] = series.Aggregation
		copied[TagSeriesColor] = series.Color

		tagged[i] = copied
	}

	return tagged
}

func tagPeriodRows(rows []Row, periodType, label string) []Row {
	tagged := make([]Row, len(rows))

	for i, row := range rows {
		copied := make(Row, len(row)+2)
		for k, v := range row {
			copied[k] = v
		}

		copied[TagPeriodType] = periodType
		copied[TagPeriodLabel] = label

		tagged[i] = copied
	}

	return tagged
}

func mergeResults(results []*QueryResult, started time.Time) *QueryResult {
	merged := &QueryResult{CacheHit: true}

	var data []Row

	for _, result := range results {
		if result == nil {
			continue
		}

		data = append(data, result.Data...)
		merged.TotalCount += result.TotalCount

		if !result.CacheHit {
			merged.CacheHit = false
		}
	}

	merged.Data = data
	merged.QueryTimeMs = time.Since(started).Milliseconds()

	if len(results) == 0 {
		merged.CacheHit = false
	}

	return merged
}
