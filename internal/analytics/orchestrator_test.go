package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/pkg/xcache"
)

func newTestOrchestrator(db *fakeDB) *Orchestrator {
	store := newFakeConfigStore(measureConfig())
	filter := NewInMemoryFilter(store)
	validator := NewValidator(store)
	builder := NewBuilder()
	query := NewQueryService(db)
	cache := NewDataSourceCache(query, store,
		xcache.NewMemoryWithOptions[[]Row](time.Minute, time.Minute), filter, time.Minute)
	executor := NewExecutor(query, store, validator, builder)

	return NewOrchestrator(Config{UseCache: true}, executor, cache, store, validator, filter)
}

func measureDB() *fakeDB {
	return &fakeDB{
		columns: []string{"time_period", "practice_uid", "provider_uid", "measure", "measure_type", "measure_value", "payer"},
		rows: [][]any{
			{"2024-01-31", int64(10), nil, "collections", "currency", float64(100), "Aetna"},
			{"2024-02-29", int64(10), nil, "collections", "currency", float64(200), "Cigna"},
			{"2024-03-31", int64(20), nil, "collections", "currency", float64(400), "Aetna"},
		},
	}
}

func TestOrchestrator_QueryMeasures(t *testing.T) {
	orchestrator := newTestOrchestrator(measureDB())
	ctx := authz.NewSystemContext(context.Background())

	t.Run("requires a scope", func(t *testing.T) {
		_, err := orchestrator.QueryMeasures(context.Background(), QueryParams{DataSourceID: 42})
		require.ErrorIs(t, err, ErrUnauthorizedAccess)
	})

	t.Run("requires data_source_id", func(t *testing.T) {
		_, err := orchestrator.QueryMeasures(ctx, QueryParams{Measure: "collections"})
		require.ErrorIs(t, err, ErrConfigurationMissing)
	})

	t.Run("cached path returns aggregated result", func(t *testing.T) {
		result, err := orchestrator.QueryMeasures(ctx, QueryParams{
			DataSourceID: 42,
			Measure:      "collections",
			Frequency:    "monthly",
		})
		require.NoError(t, err)
		assert.Len(t, result.Data, 3)
		assert.Equal(t, float64(700), result.TotalCount)
		assert.False(t, result.CacheHit)

		again, err := orchestrator.QueryMeasures(ctx, QueryParams{
			DataSourceID: 42,
			Measure:      "collections",
			Frequency:    "monthly",
		})
		require.NoError(t, err)
		assert.True(t, again.CacheHit)
	})

	t.Run("date range applies in memory after the cache", func(t *testing.T) {
		result, err := orchestrator.QueryMeasures(ctx, QueryParams{
			DataSourceID: 42,
			Measure:      "collections",
			Frequency:    "monthly",
			StartDate:    "2024-01-01",
			EndDate:      "2024-02-29",
		})
		require.NoError(t, err)
		assert.Len(t, result.Data, 2)
		assert.Equal(t, float64(300), result.TotalCount)
		assert.True(t, result.CacheHit)
	})

	t.Run("advanced filters apply in memory", func(t *testing.T) {
		result, err := orchestrator.QueryMeasures(ctx, QueryParams{
			DataSourceID: 42,
			Measure:      "collections",
			Frequency:    "monthly",
			AdvancedFilters: []ChartFilter{
				{Field: "payer", Operator: OpEq, Value: "Aetna"},
			},
		})
		require.NoError(t, err)
		assert.Len(t, result.Data, 2)
	})

	t.Run("unauthorized filter field surfaces untranslated", func(t *testing.T) {
		_, err := orchestrator.QueryMeasures(ctx, QueryParams{
			DataSourceID: 42,
			AdvancedFilters: []ChartFilter{
				{Field: "internal_notes", Operator: OpEq, Value: "x"},
			},
		})
		require.ErrorIs(t, err, ErrUnauthorizedAccess)
		require.NotErrorIs(t, err, ErrQueryFailed)
	})
}

func TestOrchestrator_ScopedVisibility(t *testing.T) {
	orchestrator := newTestOrchestrator(measureDB())

	ctx, err := authz.WithScope(context.Background(), orgScope(10))
	require.NoError(t, err)

	result, err := orchestrator.QueryMeasures(ctx, QueryParams{
		DataSourceID: 42,
		Measure:      "collections",
		Frequency:    "monthly",
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 2)

	for _, row := range result.Data {
		assert.Equal(t, int64(10), row["practice_uid"])
	}

	t.Run("empty practice list sees zero rows", func(t *testing.T) {
		emptyCtx, err := authz.WithScope(context.Background(), orgScope())
		require.NoError(t, err)

		result, err := orchestrator.QueryMeasures(emptyCtx, QueryParams{
			DataSourceID: 42,
			Measure:      "collections",
			Frequency:    "monthly",
		})
		require.NoError(t, err)
		assert.Empty(t, result.Data)
		assert.Equal(t, float64(0), result.TotalCount)
	})
}

func TestOrchestrator_MultipleSeries(t *testing.T) {
	db := measureDB()
	orchestrator := newTestOrchestrator(db)
	ctx := authz.NewSystemContext(context.Background())

	result, err := orchestrator.QueryMeasures(ctx, QueryParams{
		DataSourceID: 42,
		Frequency:    "monthly",
		MultipleSeries: []SeriesSpec{
			{ID: "s1", Label: "Collections", Measure: "collections", Aggregation: "sum", Color: "#336699"},
			{ID: "s2", Label: "Charges", Measure: "charges", Aggregation: "sum", Color: "#993366"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 6)

	counts := map[string]int{}
	for _, row := range result.Data {
		id, _ := row[TagSeriesID].(string)
		counts[id]++

		switch id {
		case "s1":
			assert.Equal(t, "Collections", row[TagSeriesLabel])
			assert.Equal(t, "#336699", row[TagSeriesColor])
		case "s2":
			assert.Equal(t, "Charges", row[TagSeriesLabel])
		default:
			t.Fatalf("row missing series tag: %v", row)
		}
	}

	assert.Equal(t, map[string]int{"s1": 3, "s2": 3}, counts)

	// Distinct measures fetch distinct datasets.
	assert.Equal(t, 2, db.queryCount())
}

func TestOrchestrator_MultipleSeries_SharedMeasureFetchesOnce(t *testing.T) {
	db := measureDB()
	orchestrator := newTestOrchestrator(db)
	ctx := authz.NewSystemContext(context.Background())

	_, err := orchestrator.QueryMeasures(ctx, QueryParams{
		DataSourceID: 42,
		Frequency:    "monthly",
		MultipleSeries: []SeriesSpec{
			{ID: "s1", Label: "A", Measure: "collections"},
			{ID: "s2", Label: "B", Measure: "collections"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, db.queryCount())
}

func TestOrchestrator_PeriodComparison(t *testing.T) {
	orchestrator := newTestOrchestrator(measureDB())
	ctx := authz.NewSystemContext(context.Background())

	result, err := orchestrator.QueryMeasures(ctx, QueryParams{
		DataSourceID: 42,
		Measure:      "collections",
		Frequency:    "monthly",
		StartDate:    "2024-03-01",
		EndDate:      "2024-03-31",
		PeriodComparison: &PeriodComparison{
			Enabled:        true,
			ComparisonType: ComparisonPreviousPeriod,
		},
	})
	require.NoError(t, err)

	periods := map[string]string{}
	for _, row := range result.Data {
		periodType, _ := row[TagPeriodType].(string)
		label, _ := row[TagPeriodLabel].(string)
		periods[periodType] = label
	}

	assert.Equal(t, "2024-03-01 to 2024-03-31", periods[PeriodTypeCurrent])
	assert.Equal(t, "2024-02-01 to 2024-02-29", periods[PeriodTypeComparison])
}

func TestOrchestrator_QueryFailureWrapped(t *testing.T) {
	db := measureDB()
	db.err = errors.New("connection refused")

	orchestrator := newTestOrchestrator(db)
	ctx := authz.NewSystemContext(context.Background())

	_, err := orchestrator.QueryMeasures(ctx, QueryParams{
		DataSourceID: 42,
		Measure:      "collections",
	})
	require.ErrorIs(t, err, ErrQueryFailed)
}
