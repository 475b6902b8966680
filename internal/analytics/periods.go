package analytics

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ComparisonRange is the derived comparison period for a period-comparison
// request.
type ComparisonRange struct {
	StartDate string
	EndDate   string
	Label     string
}

// ComputeComparisonRange derives the comparison date range for the given
// frequency and comparison type. previous_period shifts the window back by
// its own length, previous_year by one calendar year, custom_period by
// offset window lengths (offset must be >= 1).
func ComputeComparisonRange(frequency, startDate, endDate string, pc PeriodComparison) (*ComparisonRange, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start_date %q", ErrInvalidFilterShape, startDate)
	}

	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end_date %q", ErrInvalidFilterShape, endDate)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidFilterShape)
	}

	offset := 1

	switch pc.ComparisonType {
	case ComparisonPreviousPeriod:
	case ComparisonPreviousYear:
		compStart := shiftYears(start, -1)
		compEnd := shiftYears(end, -1)

		return newComparisonRange(compStart, compEnd), nil
	case ComparisonCustomPeriod:
		if pc.CustomPeriodOffset < 1 {
			return nil, fmt.Errorf("%w: custom_period offset must be >= 1", ErrInvalidFilterShape)
		}

		offset = pc.CustomPeriodOffset
	default:
		return nil, fmt.Errorf("%w: unknown comparison type %q", ErrInvalidFilterShape, pc.ComparisonType)
	}

	var compStart, compEnd time.Time

	switch frequency {
	case "monthly":
		months := monthsSpanned(start, end) * offset
		compStart = shiftMonths(start, -months)
		compEnd = shiftMonths(end, -months)
	case "quarterly":
		months := monthsSpanned(start, end) * offset
		if months < 3 {
			months = 3 * offset
		}

		compStart = shiftMonths(start, -months)
		compEnd = shiftMonths(end, -months)
	case "yearly":
		years := end.Year() - start.Year() + 1
		compStart = shiftYears(start, -years*offset)
		compEnd = shiftYears(end, -years*offset)
	default:
		// daily, weekly, and unknown frequencies shift by calendar days.
		days := int(end.Sub(start).Hours()/24) + 1
		compStart = start.AddDate(0, 0, -days*offset)
		compEnd = end.AddDate(0, 0, -days*offset)
	}

	return newComparisonRange(compStart, compEnd), nil
}

func newComparisonRange(start, end time.Time) *ComparisonRange {
	startDate := start.Format(dateLayout)
	endDate := end.Format(dateLayout)

	return &ComparisonRange{
		StartDate: startDate,
		EndDate:   endDate,
		Label:     fmt.Sprintf("%s to %s", startDate, endDate),
	}
}

// monthsSpanned counts the calendar months a range touches: Mar 1 to Mar 31
// spans one month, Feb 15 to Mar 15 spans two.
func monthsSpanned(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
}

// shiftMonths moves a date by whole months, clamping to the last day of the
// target month instead of letting Go normalize Mar 31 - 1 month into Mar 3.
func shiftMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()

	if day > lastDay {
		day = lastDay
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}

// shiftYears moves a date by whole years, clamping Feb 29 to Feb 28 on
// non-leap targets.
func shiftYears(t time.Time, years int) time.Time {
	year, month, day := t.Date()

	firstOfTarget := time.Date(year+years, month, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()

	if day > lastDay {
		day = lastDay
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}
