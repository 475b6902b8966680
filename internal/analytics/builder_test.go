package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichub/clinichub/internal/authz"
)

func TestBuilder_BuildWhereClause_Scopes(t *testing.T) {
	b := NewBuilder()
	ctx := context.Background()

	t.Run("admin scope adds no access predicates", func(t *testing.T) {
		clause, err := b.BuildWhereClause(ctx, nil, authz.SystemScope(), 1)
		require.NoError(t, err)
		assert.True(t, clause.Empty())
		assert.Empty(t, clause.Args)
	})

	t.Run("organization scope restricts practices", func(t *testing.T) {
		clause, err := b.BuildWhereClause(ctx, nil, orgScope(10, 20), 1)
		require.NoError(t, err)
		assert.Equal(t, "practice_uid = ANY($1)", clause.SQL)
		require.Len(t, clause.Args, 1)
		assert.Equal(t, []int64{10, 20}, clause.Args[0])
	})

	t.Run("empty practice list fails closed", func(t *testing.T) {
		clause, err := b.BuildWhereClause(ctx, nil, orgScope(), 1)
		require.NoError(t, err)
		assert.Equal(t, "1 = 0", clause.SQL)
		assert.Empty(t, clause.Args)
	})

	t.Run("provider restriction keeps null provider rows", func(t *testing.T) {
		scope := orgScope(10)
		scope.AccessibleProviders = []int64{5}

		clause, err := b.BuildWhereClause(ctx, nil, scope, 1)
		require.NoError(t, err)
		assert.Equal(t, "practice_uid = ANY($1) AND (provider_uid IS NULL OR provider_uid = ANY($2))", clause.SQL)
		require.Len(t, clause.Args, 2)
	})
}

func TestBuilder_BuildWhereClause_Filters(t *testing.T) {
	b := NewBuilder()
	ctx := context.Background()

	clause, err := b.BuildWhereClause(ctx, []ChartFilter{
		{Field: "measure", Operator: OpEq, Value: "collections"},
		{Field: "time_period", Operator: OpBetween, Value: []any{"2024-01-01", "2024-03-31"}},
	}, orgScope(10), 1)
	require.NoError(t, err)

	assert.Equal(t,
		"practice_uid = ANY($1) AND measure = $2 AND time_period BETWEEN $3 AND $4",
		clause.SQL)
	assert.Equal(t, []any{[]int64{10}, "collections", "2024-01-01", "2024-03-31"}, clause.Args)
	assert.Equal(t, 5, clause.NextArg)
}

func TestBuilder_BuildAdvancedFilterClause(t *testing.T) {
	b := NewBuilder()
	ctx := context.Background()

	tests := []struct {
		name    string
		filters []ChartFilter
		wantSQL string
		args    int
	}{
		{
			name:    "in renders as any",
			filters: []ChartFilter{{Field: "payer", Operator: OpIn, Value: []any{"Aetna", "Cigna"}}},
			wantSQL: "payer = ANY($1)",
			args:    1,
		},
		{
			name:    "empty in fails closed",
			filters: []ChartFilter{{Field: "payer", Operator: OpIn, Value: []any{}}},
			wantSQL: "1 = 0",
			args:    0,
		},
		{
			name:    "not_in renders as all",
			filters: []ChartFilter{{Field: "payer", Operator: OpNotIn, Value: []any{"Self Pay"}}},
			wantSQL: "payer != ALL($1)",
			args:    1,
		},
		{
			name:    "like wraps pattern and ignores case",
			filters: []ChartFilter{{Field: "payer", Operator: OpLike, Value: "blue"}},
			wantSQL: "payer ILIKE $1",
			args:    1,
		},
		{
			name: "scalar comparisons chain with and",
			filters: []ChartFilter{
				{Field: "measure_value", Operator: OpGte, Value: float64(100)},
				{Field: "measure_value", Operator: OpLt, Value: float64(500)},
			},
			wantSQL: "measure_value >= $1 AND measure_value < $2",
			args:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, err := b.BuildAdvancedFilterClause(ctx, tt.filters, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, clause.SQL)
			assert.Len(t, clause.Args, tt.args)
		})
	}
}

func TestBuilder_BuildAdvancedFilterClause_Rejections(t *testing.T) {
	b := NewBuilder()
	ctx := context.Background()

	_, err := b.BuildAdvancedFilterClause(ctx, []ChartFilter{
		{Field: "payer; DROP TABLE x", Operator: OpEq, Value: "x"},
	}, 1)
	require.ErrorIs(t, err, ErrUnauthorizedAccess)

	_, err = b.BuildAdvancedFilterClause(ctx, []ChartFilter{
		{Field: "payer", Operator: "regex", Value: "x"},
	}, 1)
	require.ErrorIs(t, err, ErrUnauthorizedAccess)

	_, err = b.BuildAdvancedFilterClause(ctx, []ChartFilter{
		{Field: "payer", Operator: OpBetween, Value: []any{"only-one"}},
	}, 1)
	require.ErrorIs(t, err, ErrInvalidFilterShape)
}
