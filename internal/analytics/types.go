package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// FilterOperator is one of the whitelisted chart filter operators.
type FilterOperator string

const (
	OpEq      FilterOperator = "eq"
	OpNeq     FilterOperator = "neq"
	OpGt      FilterOperator = "gt"
	OpGte     FilterOperator = "gte"
	OpLt      FilterOperator = "lt"
	OpLte     FilterOperator = "lte"
	OpIn      FilterOperator = "in"
	OpNotIn   FilterOperator = "not_in"
	OpLike    FilterOperator = "like"
	OpBetween FilterOperator = "between"
)

// Valid reports whether the operator is in the fixed whitelist.
func (op FilterOperator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpLike, OpBetween:
		return true
	default:
		return false
	}
}

// ChartFilter is a user-supplied filter. Field must be validated against the
// owning data source before use; Value may be a scalar or an array depending
// on the operator.
type ChartFilter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// SeriesSpec describes one series of a multi-series chart request.
type SeriesSpec struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Measure     string `json:"measure"`
	Aggregation string `json:"aggregation"`
	Color       string `json:"color"`
}

// PeriodComparisonType selects how the comparison date range is derived.
type PeriodComparisonType string

const (
	ComparisonPreviousPeriod PeriodComparisonType = "previous_period"
	ComparisonPreviousYear   PeriodComparisonType = "previous_year"
	ComparisonCustomPeriod   PeriodComparisonType = "custom_period"
)

// PeriodComparison configures a current-vs-comparison period request.
type PeriodComparison struct {
	Enabled            bool                 `json:"enabled"`
	ComparisonType     PeriodComparisonType `json:"comparison_type"`
	CustomPeriodOffset int                  `json:"custom_period_offset"`
}

// Row is one analytics result row.
type Row = map[string]any

// Result row tag keys added by the orchestrator during fan-out.
const (
	TagSeriesID          = "series_id"
	TagSeriesLabel       = "series_label"
	TagSeriesAggregation = "series_aggregation"
	TagSeriesColor       = "series_color"
	TagPeriodLabel       = "period_label"
	TagPeriodType        = "period_type"
)

// Period type tag values.
const (
	PeriodTypeCurrent    = "current"
	PeriodTypeComparison = "comparison"
)

// QueryParams is the full analytics query request.
type QueryParams struct {
	DataSourceID     int64             `json:"data_source_id"`
	Schema           string            `json:"schema,omitempty"`
	Table            string            `json:"table,omitempty"`
	Measure          string            `json:"measure,omitempty"`
	Frequency        string            `json:"frequency,omitempty"`
	StartDate        string            `json:"start_date,omitempty"`
	EndDate          string            `json:"end_date,omitempty"`
	PracticeUID      *int64            `json:"practice_uid,omitempty"`
	ProviderUID      *int64            `json:"provider_uid,omitempty"`
	AdvancedFilters  []ChartFilter     `json:"advanced_filters,omitempty"`
	MultipleSeries   []SeriesSpec      `json:"multiple_series,omitempty"`
	PeriodComparison *PeriodComparison `json:"period_comparison,omitempty"`
	BypassCache      bool              `json:"bypass_cache,omitempty"`
}

// QueryResult is the output contract to the HTTP layer.
type QueryResult struct {
	Data        []Row   `json:"data"`
	TotalCount  float64 `json:"total_count"`
	QueryTimeMs int64   `json:"query_time_ms"`
	CacheHit    bool    `json:"cache_hit"`
}

// CacheQueryParams is the subset of request parameters that determine cache
// key identity. Date ranges and advanced filters are deliberately excluded:
// they are applied in-memory after a hit so differently-filtered requests
// against the same base dataset share one cached row set.
type CacheQueryParams struct {
	DataSourceID int64  `json:"data_source_id"`
	Schema       string `json:"schema"`
	Table        string `json:"table"`
	Measure      string `json:"measure"`
	PracticeUID  *int64 `json:"practice_uid,omitempty"`
	ProviderUID  *int64 `json:"provider_uid,omitempty"`
	Frequency    string `json:"frequency"`
}

// Fingerprint returns a stable hash of the cache-identity fields.
func (p CacheQueryParams) Fingerprint() string {
	var sb strings.Builder

	sb.WriteString(strconv.FormatInt(p.DataSourceID, 10))
	sb.WriteByte('|')
	sb.WriteString(p.Schema)
	sb.WriteByte('|')
	sb.WriteString(p.Table)
	sb.WriteByte('|')
	sb.WriteString(p.Measure)
	sb.WriteByte('|')

	if p.PracticeUID != nil {
		sb.WriteString(strconv.FormatInt(*p.PracticeUID, 10))
	}

	sb.WriteByte('|')

	if p.ProviderUID != nil {
		sb.WriteString(strconv.FormatInt(*p.ProviderUID, 10))
	}

	sb.WriteByte('|')
	sb.WriteString(p.Frequency)

	return fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
}

// DimensionValue is one entry of a dimension value summary.
type DimensionValue struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	RecordCount int    `json:"record_count"`
	IsOther     bool   `json:"is_other,omitempty"`
}

// DimensionValuesResult is the cached dimension value summary.
type DimensionValuesResult struct {
	Values            []DimensionValue `json:"values"`
	HasMore           bool             `json:"has_more"`
	OtherRecordCount  int              `json:"other_record_count"`
	TotalUniqueValues int              `json:"total_unique_values"`
}

// hashFilterParams produces the filter fingerprint used in dimension cache
// keys: a content hash over every filter-affecting parameter.
func hashFilterParams(measure, frequency, startDate, endDate string, practiceUIDs []int64, filters []ChartFilter) string {
	sorted := append([]int64(nil), practiceUIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sb strings.Builder

	sb.WriteString(measure)
	sb.WriteByte('|')
	sb.WriteString(frequency)
	sb.WriteByte('|')
	sb.WriteString(startDate)
	sb.WriteByte('|')
	sb.WriteString(endDate)
	sb.WriteByte('|')

	for _, uid := range sorted {
		sb.WriteString(strconv.FormatInt(uid, 10))
		sb.WriteByte(',')
	}

	sb.WriteByte('|')

	for _, f := range filters {
		sb.WriteString(f.Field)
		sb.WriteByte(':')
		sb.WriteString(string(f.Operator))
		sb.WriteByte(':')
		fmt.Fprintf(&sb, "%v", f.Value)
		sb.WriteByte(';')
	}

	return fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
}
