package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/plotform-labs/plotform/internal/dataset"
)

// maxCategoryLen caps category labels so axis ticks stay readable.
const maxCategoryLen = 25

// ChartRow is one chart-ready output row: a category label and the finalized
// value per values-well field, in well order. Highlighted is the cross-filter
// annotation layered on top by the caller; it never affects row membership.
type ChartRow struct {
	Category    string
	Values      []float64
	Highlighted *bool

	// bucketStart orders time-bucketed rows chronologically; zero when the
	// axis was not bucketed.
	bucketStart time.Time
}

// MarshalJSON emits the wire column naming: value, value2, value3...
func (r ChartRow) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Values)+2)
	obj["category"] = r.Category
	for i, v := range r.Values {
		key := "value"
		if i > 0 {
			key = fmt.Sprintf("value%d", i+1)
		}
		obj[key] = v
	}
	if r.Highlighted != nil {
		obj["highlighted"] = *r.Highlighted
	}
	return json.Marshal(obj)
}

// UnmarshalJSON rebuilds a row from the value/value2/... column naming.
func (r *ChartRow) UnmarshalJSON(raw []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	r.Category, _ = obj["category"].(string)
	r.Values = nil
	for i := 0; ; i++ {
		key := "value"
		if i > 0 {
			key = fmt.Sprintf("value%d", i+1)
		}
		v, ok := obj[key]
		if !ok {
			break
		}
		n, _ := v.(float64)
		r.Values = append(r.Values, n)
	}
	if h, ok := obj["highlighted"].(bool); ok {
		r.Highlighted = &h
	}
	return nil
}

// accumulator tracks one value field's running aggregates within a group.
type accumulator struct {
	sum   float64
	count int
	min   float64
	max   float64
}

func (a *accumulator) add(v float64) {
	if a.count == 0 {
		a.min = v
		a.max = v
	} else {
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
	a.sum += v
	a.count++
}

// finalize applies the field's configured aggregation. min and max track the
// running extrema; the upstream implementation this engine replaces fell back
// to sum for them, and that behavior is deliberately not inherited (see
// DESIGN.md).
func (a *accumulator) finalize(agg dataset.Aggregation) float64 {
	switch agg {
	case dataset.AggAvg:
		if a.count == 0 {
			return 0
		}
		return round2(a.sum / float64(a.count))
	case dataset.AggCount:
		return float64(a.count)
	case dataset.AggMin:
		if a.count == 0 {
			return 0
		}
		return round2(a.min)
	case dataset.AggMax:
		if a.count == 0 {
			return 0
		}
		return round2(a.max)
	default:
		return round2(a.sum)
	}
}

type group struct {
	label       string
	bucketStart time.Time
	accs        []accumulator
}

// DeriveRows turns the filtered record set into chart-ready rows per the
// visual's field mapping.
//
// The group key is the axis field's raw value, unless the axis is date-typed
// and the first value field buckets time, in which case records group under
// the bucket label for that granularity. Only the first value field's
// granularity governs bucketing; mixed granularities are not supported.
//
// A mapping without an axis or without value fields derives nothing — the
// visual keeps its prior data. That is a valid "not yet configured" state,
// not an error.
func DeriveRows(records []dataset.Record, m Mapping) []ChartRow {
	if !m.IsConfigured() {
		return nil
	}
	axis := *m.Axis.Field
	values := m.Values.Fields

	gran := values[0].Granularity
	bucketed := axis.IsDate() && gran != "" && gran != dataset.GranNone

	groups := make(map[string]*group)
	order := make([]string, 0)

	for _, rec := range records {
		raw := rec[axis.ID]
		var key string
		var start time.Time
		if bucketed {
			t, ok := dataset.Date(raw)
			if !ok {
				// Unparseable dates group under their raw text rather than
				// silently dropping the record.
				key = dataset.Text(raw)
			} else {
				key, start = bucket(t, gran)
			}
		} else {
			key = dataset.Text(raw)
		}

		g, ok := groups[key]
		if !ok {
			g = &group{label: key, bucketStart: start, accs: make([]accumulator, len(values))}
			groups[key] = g
			order = append(order, key)
		}
		for i, vf := range values {
			if vf.Aggregation == dataset.AggCount {
				// count counts contributing records, present or not numeric
				g.accs[i].count++
				continue
			}
			if n, ok := dataset.Number(rec[vf.ID]); ok {
				g.accs[i].add(n)
			}
		}
	}

	rows := make([]ChartRow, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		row := ChartRow{
			Category:    truncateLabel(g.label),
			Values:      make([]float64, len(values)),
			bucketStart: g.bucketStart,
		}
		for i, vf := range values {
			row.Values[i] = g.accs[i].finalize(vf.Aggregation)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if bucketed && !rows[i].bucketStart.Equal(rows[j].bucketStart) {
			return rows[i].bucketStart.Before(rows[j].bucketStart)
		}
		return strings.ToLower(rows[i].Category) < strings.ToLower(rows[j].Category)
	})
	return rows
}

// Annotate marks each row whose category matches the highlighted value and
// dims the rest. With no highlight value the rows pass through unannotated.
func Annotate(rows []ChartRow, highlight any, active bool) []ChartRow {
	if !active {
		return rows
	}
	want := highlightSet(highlight)
	for i := range rows {
		hit := want[strings.ToLower(rows[i].Category)]
		v := hit
		rows[i].Highlighted = &v
	}
	return rows
}

func highlightSet(v any) map[string]bool {
	set := make(map[string]bool)
	switch vv := v.(type) {
	case []any:
		for _, item := range vv {
			set[strings.ToLower(truncateLabel(dataset.Text(item)))] = true
		}
	case []string:
		for _, item := range vv {
			set[strings.ToLower(truncateLabel(item))] = true
		}
	default:
		set[strings.ToLower(truncateLabel(dataset.Text(v)))] = true
	}
	return set
}

// bucket returns the label and start instant for a timestamp at a
// granularity. Labels embed the year first so label order and chronological
// order agree within the supported formats.
func bucket(t time.Time, gran dataset.Granularity) (string, time.Time) {
	switch gran {
	case dataset.GranDay:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return start.Format("2006-01-02"), start
	case dataset.GranWeek:
		start := startOfWeek(t)
		return start.Format("2006-01-02"), start
	case dataset.GranMonth:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return start.Format("2006-01"), start
	case dataset.GranQuarter:
		q := (int(t.Month())-1)/3 + 1
		start := time.Date(t.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, t.Location())
		return fmt.Sprintf("%d-Q%d", t.Year(), q), start
	case dataset.GranYear:
		start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
		return start.Format("2006"), start
	default:
		return t.Format("2006-01-02"), t
	}
}

// startOfWeek returns the Monday 00:00 of the timestamp's week.
func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

// truncateLabel cuts on rune boundaries so multibyte labels stay valid UTF-8.
func truncateLabel(s string) string {
	if len(s) <= maxCategoryLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxCategoryLen {
		return s
	}
	return string(runes[:maxCategoryLen])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
