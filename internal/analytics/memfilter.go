package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/clinichub/clinichub/internal/authz"
)

// InMemoryFilter applies date-range and advanced filters to already-fetched
// rows. It is used exclusively on the cache path, where row-level access
// control and filtering happen after data retrieval.
type InMemoryFilter struct {
	Configs ConfigStore
}

// NewInMemoryFilter creates an InMemoryFilter.
func NewInMemoryFilter(configs ConfigStore) *InMemoryFilter {
	return &InMemoryFilter{Configs: configs}
}

// ApplyDateRangeFilter keeps rows whose date column value is within
// [start, end], both bounds inclusive, comparing ISO date strings. Rows with
// a missing date value are dropped. Sources without a date column (table-based
// sources may have none) pass through unfiltered.
func (f *InMemoryFilter) ApplyDateRangeFilter(ctx context.Context, rows []Row, dataSourceID int64, start, end string) ([]Row, error) {
	if start == "" && end == "" {
		return rows, nil
	}

	cfg, err := f.Configs.GetDataSourceConfigByID(ctx, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("load data source config: %w", err)
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w: data source %d", ErrConfigurationMissing, dataSourceID)
	}

	dateColumn, ok := cfg.DateColumn()
	if !ok {
		return rows, nil
	}

	filtered := make([]Row, 0, len(rows))

	for _, row := range rows {
		value, ok := rowDateString(row[dateColumn])
		if !ok {
			continue
		}

		if start != "" && value < start {
			continue
		}

		if end != "" && value > end {
			continue
		}

		filtered = append(filtered, row)
	}

	return filtered, nil
}

// ApplyAdvancedFilters AND-combines all filters: a row must pass every
// filter to be kept.
func (f *InMemoryFilter) ApplyAdvancedFilters(rows []Row, filters []ChartFilter) []Row {
	if len(filters) == 0 {
		return rows
	}

	filtered := make([]Row, 0, len(rows))

	for _, row := range rows {
		keep := true

		for _, filter := range filters {
			if !matchesFilter(row, filter) {
				keep = false
				break
			}
		}

		if keep {
			filtered = append(filtered, row)
		}
	}

	return filtered
}

// ApplyScope keeps only rows the caller's scope permits, using the shared
// row policy. Rows without a readable practice_uid are dropped for any
// restricted scope.
func (f *InMemoryFilter) ApplyScope(rows []Row, scope authz.Scope) []Row {
	if scope.AllowsAllRows() {
		return rows
	}

	filtered := make([]Row, 0, len(rows))

	for _, row := range rows {
		practiceUID, err := cast.ToInt64E(row["practice_uid"])
		if err != nil {
			continue
		}

		var providerUID *int64
		if raw, ok := row["provider_uid"]; ok && raw != nil {
			if uid, err := cast.ToInt64E(raw); err == nil {
				providerUID = &uid
			}
		}

		if scope.AllowRow(practiceUID, providerUID) {
			filtered = append(filtered, row)
		}
	}

	return filtered
}

// matchesFilter evaluates one filter against one row. Numeric-looking string
// operands are coerced before comparison so UI-submitted string parameters
// match numeric columns.
func matchesFilter(row Row, filter ChartFilter) bool {
	value, ok := row[filter.Field]
	if !ok {
		return false
	}

	switch filter.Operator {
	case OpEq:
		return valuesEqual(value, filter.Value)
	case OpNeq:
		return !valuesEqual(value, filter.Value)
	case OpGt, OpGte, OpLt, OpLte:
		left, err1 := cast.ToFloat64E(value)
		right, err2 := cast.ToFloat64E(filter.Value)

		if err1 != nil || err2 != nil {
			return false
		}

		switch filter.Operator {
		case OpGt:
			return left > right
		case OpGte:
			return left >= right
		case OpLt:
			return left < right
		default:
			return left <= right
		}
	case OpIn, OpNotIn:
		items, err := toAnySlice(filter.Value)
		if err != nil {
			return false
		}

		found := false

		for _, item := range items {
			if valuesEqual(value, item) {
				found = true
				break
			}
		}

		if filter.Operator == OpIn {
			return found
		}

		return !found
	case OpLike:
		left, okLeft := value.(string)
		right, okRight := filter.Value.(string)

		if !okLeft || !okRight {
			return false
		}

		return strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case OpBetween:
		items, err := toAnySlice(filter.Value)
		if err != nil || len(items) != 2 {
			return false
		}

		v, err := cast.ToFloat64E(value)
		if err != nil {
			return false
		}

		low, err1 := cast.ToFloat64E(items[0])
		high, err2 := cast.ToFloat64E(items[1])

		if err1 != nil || err2 != nil {
			return false
		}

		return v >= low && v <= high
	default:
		return false
	}
}

// valuesEqual compares two scalars, coercing both sides to float64 when both
// look numeric.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	left, err1 := cast.ToFloat64E(a)
	right, err2 := cast.ToFloat64E(b)

	if err1 == nil && err2 == nil {
		return left == right
	}

	return cast.ToString(a) == cast.ToString(b)
}

func rowDateString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case time.Time:
		return v.Format("2006-01-02"), true
	case string:
		if v == "" {
			return "", false
		}

		if len(v) >= 10 {
			return v[:10], true
		}

		return v, true
	default:
		return "", false
	}
}
