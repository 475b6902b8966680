package analytics

import (
	"github.com/spf13/cast"
)

// Measure types whose totals are sums of the measure value column rather
// than row counts.
const (
	MeasureTypeCurrency = "currency"
	MeasureTypeQuantity = "quantity"
)

// MeasureAccessor computes result totals for a data source, keyed by the
// source's declared measure-type column. Table-based sources and sources
// without a measure triple fall back to row counts.
type MeasureAccessor struct {
	valueColumn string
	typeColumn  string
	aggregate   bool
}

// NewMeasureAccessor builds an accessor for the given config.
func NewMeasureAccessor(cfg *DataSourceConfig) *MeasureAccessor {
	accessor := &MeasureAccessor{}

	if cfg == nil || cfg.Type != SourceMeasureBased {
		return accessor
	}

	valueColumn, okValue := cfg.MeasureValueColumn()
	typeColumn, okType := cfg.MeasureTypeColumn()

	if okValue && okType {
		accessor.valueColumn = valueColumn
		accessor.typeColumn = typeColumn
		accessor.aggregate = true
	}

	return accessor
}

// TotalCount returns the total for a row set: the sum of the measure value
// column when the rows carry a currency or quantity measure type, otherwise
// the row count.
func (m *MeasureAccessor) TotalCount(rows []Row) float64 {
	if !m.aggregate || len(rows) == 0 {
		return float64(len(rows))
	}

	measureType := cast.ToString(rows[0][m.typeColumn])
	if measureType != MeasureTypeCurrency && measureType != MeasureTypeQuantity {
		return float64(len(rows))
	}

	var total float64

	for _, row := range rows {
		value, err := cast.ToFloat64E(row[m.valueColumn])
		if err != nil {
			continue
		}

		total += value
	}

	return total
}
