package filter

import (
	"strings"

	"github.com/plotform-labs/plotform/internal/dataset"
)

// Operator names a predicate applied to one field.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpGT       Operator = "gt"
	OpLT       Operator = "lt"
	OpGTE     Operator = "gte"
	OpLTE     Operator = "lte"
	OpBetween Operator = "between"
)

// NumericRange is the inclusive range for the between operator.
type NumericRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DateRange carries a date-range slicer's bounds as ISO date strings, which
// compare correctly lexicographically. Either bound may be empty for an
// open-ended range.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Value is one active filter predicate. At most one Value exists per field;
// the field is the dedup key in the Store.
type Value struct {
	Field        string        `json:"field"`
	Values       []any         `json:"values"`
	Operator     Operator      `json:"operator"`
	NumericRange *NumericRange `json:"numericRange,omitempty"`
	DateRange    *DateRange    `json:"dateRange,omitempty"`
}

// Evaluate decides whether one record passes one filter.
//
// An empty value list makes every operator vacuously true (a no-op filter),
// as does a between filter without a range: a slicer with nothing selected
// never hides data. Numeric operators coerce both sides with dataset.Number;
// a malformed value fails the predicate silently, excluding the record
// rather than erroring.
func Evaluate(f Value, rec dataset.Record) bool {
	switch f.Operator {
	case OpContains:
		if len(f.Values) == 0 {
			return true
		}
		haystack := strings.ToLower(dataset.Text(rec[f.Field]))
		for _, v := range f.Values {
			if strings.Contains(haystack, strings.ToLower(dataset.Text(v))) {
				return true
			}
		}
		return false

	case OpGT, OpLT, OpGTE, OpLTE:
		if len(f.Values) == 0 {
			return true
		}
		// Only the first value is consulted.
		threshold, ok := dataset.Number(f.Values[0])
		if !ok {
			return false
		}
		n, ok := dataset.Number(rec[f.Field])
		if !ok {
			return false
		}
		switch f.Operator {
		case OpGT:
			return n > threshold
		case OpLT:
			return n < threshold
		case OpGTE:
			return n >= threshold
		default:
			return n <= threshold
		}

	case OpBetween:
		if f.NumericRange != nil {
			n, ok := dataset.Number(rec[f.Field])
			if !ok {
				return false
			}
			return n >= f.NumericRange.Min && n <= f.NumericRange.Max
		}
		if f.DateRange != nil {
			d, ok := dataset.Date(rec[f.Field])
			if !ok {
				return false
			}
			iso := d.Format("2006-01-02")
			if f.DateRange.Start != "" && iso < f.DateRange.Start {
				return false
			}
			if f.DateRange.End != "" && iso > f.DateRange.End {
				return false
			}
			return true
		}
		// between without a range is vacuous
		return true

	default:
		// equals, and the fallback for unrecognized operators
		if len(f.Values) == 0 {
			return true
		}
		rv := dataset.Text(rec[f.Field])
		for _, v := range f.Values {
			if dataset.Text(v) == rv {
				return true
			}
		}
		return false
	}
}
