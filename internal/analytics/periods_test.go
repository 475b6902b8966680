package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeComparisonRange_PreviousPeriod(t *testing.T) {
	tests := []struct {
		name      string
		frequency string
		start     string
		end       string
		wantStart string
		wantEnd   string
	}{
		{
			name:      "monthly single month",
			frequency: "monthly",
			start:     "2024-03-01",
			end:       "2024-03-31",
			wantStart: "2024-02-01",
			wantEnd:   "2024-02-29",
		},
		{
			name:      "monthly three months",
			frequency: "monthly",
			start:     "2024-01-01",
			end:       "2024-03-31",
			wantStart: "2023-10-01",
			wantEnd:   "2023-12-31",
		},
		{
			name:      "quarterly",
			frequency: "quarterly",
			start:     "2024-04-01",
			end:       "2024-06-30",
			wantStart: "2024-01-01",
			wantEnd:   "2024-03-30",
		},
		{
			name:      "yearly",
			frequency: "yearly",
			start:     "2024-01-01",
			end:       "2024-12-31",
			wantStart: "2023-01-01",
			wantEnd:   "2023-12-31",
		},
		{
			name:      "daily shifts by day count",
			frequency: "daily",
			start:     "2024-03-11",
			end:       "2024-03-17",
			wantStart: "2024-03-04",
			wantEnd:   "2024-03-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeComparisonRange(tt.frequency, tt.start, tt.end, PeriodComparison{
				Enabled:        true,
				ComparisonType: ComparisonPreviousPeriod,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, got.StartDate)
			assert.Equal(t, tt.wantEnd, got.EndDate)
			assert.Equal(t, tt.wantStart+" to "+tt.wantEnd, got.Label)
		})
	}
}

func TestComputeComparisonRange_PreviousYear(t *testing.T) {
	got, err := ComputeComparisonRange("monthly", "2024-02-29", "2024-03-31", PeriodComparison{
		Enabled:        true,
		ComparisonType: ComparisonPreviousYear,
	})
	require.NoError(t, err)

	// Feb 29 clamps to Feb 28 on the non-leap year.
	assert.Equal(t, "2023-02-28", got.StartDate)
	assert.Equal(t, "2023-03-31", got.EndDate)
}

func TestComputeComparisonRange_CustomPeriod(t *testing.T) {
	got, err := ComputeComparisonRange("monthly", "2024-03-01", "2024-03-31", PeriodComparison{
		Enabled:            true,
		ComparisonType:     ComparisonCustomPeriod,
		CustomPeriodOffset: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "2023-12-01", got.StartDate)
	assert.Equal(t, "2023-12-31", got.EndDate)

	_, err = ComputeComparisonRange("monthly", "2024-03-01", "2024-03-31", PeriodComparison{
		Enabled:        true,
		ComparisonType: ComparisonCustomPeriod,
	})
	require.ErrorIs(t, err, ErrInvalidFilterShape)
}

func TestComputeComparisonRange_Invalid(t *testing.T) {
	_, err := ComputeComparisonRange("monthly", "not-a-date", "2024-03-31", PeriodComparison{
		ComparisonType: ComparisonPreviousPeriod,
	})
	require.ErrorIs(t, err, ErrInvalidFilterShape)

	_, err = ComputeComparisonRange("monthly", "2024-03-31", "2024-03-01", PeriodComparison{
		ComparisonType: ComparisonPreviousPeriod,
	})
	require.ErrorIs(t, err, ErrInvalidFilterShape)

	_, err = ComputeComparisonRange("monthly", "2024-03-01", "2024-03-31", PeriodComparison{
		ComparisonType: "sideways",
	})
	require.ErrorIs(t, err, ErrInvalidFilterShape)
}
