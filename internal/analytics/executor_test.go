package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichub/clinichub/internal/authz"
)

func newTestExecutor(db *fakeDB) *Executor {
	store := newFakeConfigStore(measureConfig())

	return NewExecutor(NewQueryService(db), store, NewValidator(store), NewBuilder())
}

func TestExecutor_Execute_EmbedsAccessControl(t *testing.T) {
	db := measureDB()
	executor := newTestExecutor(db)
	ctx := context.Background()

	t.Run("organization scope lands in the where clause", func(t *testing.T) {
		_, err := executor.Execute(ctx, QueryParams{
			DataSourceID: 42,
			Measure:      "collections",
			Frequency:    "monthly",
			StartDate:    "2024-01-01",
			EndDate:      "2024-03-31",
		}, orgScope(10, 20))
		require.NoError(t, err)

		query := db.lastQuery()
		assert.Contains(t, query, "practice_uid = ANY($1)")
		assert.Contains(t, query, "measure = $2")
		assert.Contains(t, query, "time_period BETWEEN")
	})

	t.Run("empty practice list renders always-false", func(t *testing.T) {
		_, err := executor.Execute(ctx, QueryParams{DataSourceID: 42}, orgScope())
		require.NoError(t, err)
		assert.Contains(t, db.lastQuery(), "1 = 0")
	})

	t.Run("admin scope has no access predicates", func(t *testing.T) {
		_, err := executor.Execute(ctx, QueryParams{DataSourceID: 42}, authz.SystemScope())
		require.NoError(t, err)
		assert.NotContains(t, db.lastQuery(), "practice_uid = ANY")
	})
}

func TestExecutor_Execute_RejectsUnknownFilterField(t *testing.T) {
	executor := newTestExecutor(measureDB())

	_, err := executor.Execute(context.Background(), QueryParams{
		DataSourceID: 42,
		AdvancedFilters: []ChartFilter{
			{Field: "internal_notes", Operator: OpEq, Value: "x"},
		},
	}, authz.SystemScope())
	require.ErrorIs(t, err, ErrUnauthorizedAccess)
}

func TestExecutor_Execute_UnknownDataSource(t *testing.T) {
	executor := newTestExecutor(measureDB())

	_, err := executor.Execute(context.Background(), QueryParams{DataSourceID: 999}, authz.SystemScope())
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestExecutor_Execute_MultiSeriesTagsRows(t *testing.T) {
	db := measureDB()
	executor := newTestExecutor(db)

	result, err := executor.Execute(context.Background(), QueryParams{
		DataSourceID: 42,
		MultipleSeries: []SeriesSpec{
			{ID: "s1", Label: "Collections", Measure: "collections"},
			{ID: "s2", Label: "Charges", Measure: "charges"},
		},
	}, authz.SystemScope())
	require.NoError(t, err)

	require.Len(t, result.Data, 6)
	assert.Equal(t, 2, db.queryCount())

	for _, row := range result.Data {
		assert.NotEmpty(t, row[TagSeriesID])
	}
}
