package analytics

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Value sanitization is defense-in-depth under parameterized queries, not
// the primary defense: every value still travels as a bind argument.

var (
	// datePattern matches plain ISO dates, which pass through unchanged.
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// safeValuePattern is the conservative allowlist for string values.
	safeValuePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.,()&]*$`)

	// dangerousChars are stripped (not escaped) from any other string.
	dangerousChars = []string{"'", ";", "\x00", "\n", "\r", "\x1a", `"`}
)

// SanitizeValue validates and normalizes a single filter value for the given
// operator. Array operators require arrays; between requires exactly two
// elements; everything else is sanitized as a single value.
func SanitizeValue(value any, operator FilterOperator) (any, error) {
	switch operator {
	case OpIn, OpNotIn:
		items, err := toAnySlice(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s requires an array value", ErrInvalidFilterShape, operator)
		}

		sanitized := make([]any, len(items))
		for i, item := range items {
			s, err := sanitizeSingleValue(item)
			if err != nil {
				return nil, err
			}

			sanitized[i] = s
		}

		return sanitized, nil
	case OpBetween:
		items, err := toAnySlice(value)
		if err != nil || len(items) != 2 {
			return nil, fmt.Errorf("%w: between requires exactly 2 values", ErrInvalidFilterShape)
		}

		low, err := sanitizeSingleValue(items[0])
		if err != nil {
			return nil, err
		}

		high, err := sanitizeSingleValue(items[1])
		if err != nil {
			return nil, err
		}

		return []any{low, high}, nil
	default:
		return sanitizeSingleValue(value)
	}
}

func sanitizeSingleValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrInvalidFilterShape)
		}

		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrInvalidFilterShape)
		}

		return v, nil
	case time.Time:
		return v.Format("2006-01-02"), nil
	case string:
		return sanitizeString(v), nil
	default:
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidFilterShape, value)
		}

		return sanitizeString(s), nil
	}
}

func sanitizeString(s string) string {
	if datePattern.MatchString(s) {
		return s
	}

	if safeValuePattern.MatchString(s) {
		return s
	}

	for _, ch := range dangerousChars {
		s = strings.ReplaceAll(s, ch, "")
	}

	return s
}

func toAnySlice(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}

		return items, nil
	case []int64:
		items := make([]any, len(v))
		for i, n := range v {
			items[i] = n
		}

		return items, nil
	case []float64:
		items := make([]any, len(v))
		for i, n := range v {
			items[i] = n
		}

		return items, nil
	default:
		return nil, fmt.Errorf("%w: expected array, got %T", ErrInvalidFilterShape, value)
	}
}
