package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeasureAccessor_TotalCount(t *testing.T) {
	accessor := NewMeasureAccessor(measureConfig())

	t.Run("currency sums the value column", func(t *testing.T) {
		total := accessor.TotalCount([]Row{
			{"measure_type": "currency", "measure_value": float64(100.5)},
			{"measure_type": "currency", "measure_value": float64(49.5)},
		})
		assert.Equal(t, float64(150), total)
	})

	t.Run("quantity sums the value column", func(t *testing.T) {
		total := accessor.TotalCount([]Row{
			{"measure_type": "quantity", "measure_value": int64(3)},
			{"measure_type": "quantity", "measure_value": "7"},
		})
		assert.Equal(t, float64(10), total)
	})

	t.Run("other measure types count rows", func(t *testing.T) {
		total := accessor.TotalCount([]Row{
			{"measure_type": "percentage", "measure_value": float64(99)},
			{"measure_type": "percentage", "measure_value": float64(98)},
		})
		assert.Equal(t, float64(2), total)
	})

	t.Run("empty rows", func(t *testing.T) {
		assert.Equal(t, float64(0), accessor.TotalCount(nil))
	})

	t.Run("unparseable values are skipped", func(t *testing.T) {
		total := accessor.TotalCount([]Row{
			{"measure_type": "currency", "measure_value": float64(5)},
			{"measure_type": "currency", "measure_value": "n/a"},
		})
		assert.Equal(t, float64(5), total)
	})
}

func TestMeasureAccessor_TableBasedCountsRows(t *testing.T) {
	tableCfg := &DataSourceConfig{
		ID:     7,
		Schema: "analytics",
		Table:  "payer_mix",
		Type:   SourceTableBased,
		Active: true,
	}

	total := NewMeasureAccessor(tableCfg).TotalCount([]Row{
		{"payer": "Aetna"},
		{"payer": "Cigna"},
		{"payer": "Self Pay"},
	})
	assert.Equal(t, float64(3), total)
}
