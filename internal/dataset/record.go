package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Record is one flat row of the source record set: field key -> scalar
// (string, number, or ISO date string). Records are read-only once loaded;
// every derived dataset is recomputed from them rather than mutated in place.
type Record map[string]any

// Number coerces a record scalar to float64. The second result is false when
// the value is absent, non-numeric, or coerces to NaN — callers treat that as
// "predicate fails" / "skip the value" rather than an error.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, n == n // NaN check
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || f != f {
			return 0, false
		}
		return f, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Text coerces a record scalar to its display string. Floats that carry no
// fractional part render without a trailing ".0" so group keys built from
// JSON numbers stay stable.
func Text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// dateLayouts are tried in order when parsing a date-typed scalar.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Date parses a date-typed record scalar. Returns false for values that are
// not recognizably dates.
func Date(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
