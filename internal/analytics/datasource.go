package analytics

import (
	"context"
)

// SourceType distinguishes the two data source shapes.
type SourceType string

const (
	// SourceMeasureBased sources carry a measure/measure_type/measure_value
	// column triple and are aggregatable.
	SourceMeasureBased SourceType = "measure-based"
	// SourceTableBased sources are plain tables without the measure triple.
	SourceTableBased SourceType = "table-based"
)

// Column describes one column of a data source with its semantic roles.
type Column struct {
	Name                 string `json:"name"`
	DataType             string `json:"data_type"`
	IsDateField          bool   `json:"is_date_field"`
	IsTimePeriod         bool   `json:"is_time_period"`
	IsMeasure            bool   `json:"is_measure"`
	IsMeasureType        bool   `json:"is_measure_type"`
	IsExpansionDimension bool   `json:"is_expansion_dimension"`

	// IsFilterable is a tri-state flag: only an explicit false excludes the
	// column from the advanced filter whitelist.
	IsFilterable *bool `json:"is_filterable,omitempty"`
}

// Filterable reports whether the column may appear in advanced filters.
func (c Column) Filterable() bool {
	return c.IsFilterable == nil || *c.IsFilterable
}

// DataSourceConfig describes one queryable analytics table. Loaded from the
// configuration store; immutable for the duration of a request.
type DataSourceConfig struct {
	ID      int64      `json:"id"`
	Schema  string     `json:"schema"`
	Table   string     `json:"table"`
	Type    SourceType `json:"type"`
	Active  bool       `json:"active"`
	Columns []Column   `json:"columns"`
}

// StandardFilterColumns are always accepted as filter fields regardless of
// the data source's declared columns.
var StandardFilterColumns = []string{
	"practice_uid",
	"provider_uid",
	"measure",
	"frequency",
	"time_period",
}

// HasColumn reports whether the config declares the named column.
func (c *DataSourceConfig) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col.Name == name {
			return true
		}
	}

	return false
}

// DateColumn returns the name of the column flagged as the date field.
// Table-based sources may have none.
func (c *DataSourceConfig) DateColumn() (string, bool) {
	for _, col := range c.Columns {
		if col.IsDateField {
			return col.Name, true
		}
	}

	return "", false
}

// MeasureValueColumn returns the column holding the aggregatable measure value.
func (c *DataSourceConfig) MeasureValueColumn() (string, bool) {
	for _, col := range c.Columns {
		if col.IsMeasure {
			return col.Name, true
		}
	}

	return "", false
}

// MeasureTypeColumn returns the column declaring each row's measure type.
func (c *DataSourceConfig) MeasureTypeColumn() (string, bool) {
	for _, col := range c.Columns {
		if col.IsMeasureType {
			return col.Name, true
		}
	}

	return "", false
}

// ExpansionDimensions returns the columns eligible for drill-down value
// discovery.
func (c *DataSourceConfig) ExpansionDimensions() []string {
	var dims []string
	for _, col := range c.Columns {
		if col.IsExpansionDimension {
			dims = append(dims, col.Name)
		}
	}

	return dims
}

// AllowedFilterFields returns the set of fields accepted in advanced
// filters: the standard columns plus every declared column not explicitly
// marked non-filterable.
func (c *DataSourceConfig) AllowedFilterFields() map[string]struct{} {
	allowed := make(map[string]struct{}, len(c.Columns)+len(StandardFilterColumns))

	for _, name := range StandardFilterColumns {
		allowed[name] = struct{}{}
	}

	for _, col := range c.Columns {
		if col.Filterable() {
			allowed[col.Name] = struct{}{}
		}
	}

	return allowed
}

// ConfigStore is the configuration collaborator contract. A nil config with
// a nil error means "no such data source"; the core treats it as
// unauthorized and fails rather than defaulting.
type ConfigStore interface {
	GetDataSourceConfigByID(ctx context.Context, id int64) (*DataSourceConfig, error)
	GetDataSourceConfig(ctx context.Context, table, schema string) (*DataSourceConfig, error)
	ListActiveDataSourceConfigs(ctx context.Context) ([]*DataSourceConfig, error)
}
