package pipeline

import (
	"strings"

	"github.com/plotform-labs/plotform/internal/dataset"
)

// WellKind identifies one of a visual's field wells.
type WellKind string

const (
	WellAxis     WellKind = "axis"
	WellValues   WellKind = "values"
	WellLegend   WellKind = "legend"
	WellTooltips WellKind = "tooltips"
)

// ParseWellKind resolves a well name from the wire. Returns false for
// anything that is not a well.
func ParseWellKind(s string) (WellKind, bool) {
	switch WellKind(strings.ToLower(s)) {
	case WellAxis:
		return WellAxis, true
	case WellValues:
		return WellValues, true
	case WellLegend:
		return WellLegend, true
	case WellTooltips:
		return WellTooltips, true
	}
	return "", false
}

// AxisWell holds the single grouping field. Conceptually single, so it is a
// pointer rather than a list: the single-vs-multi distinction is a type-level
// invariant, not a convention.
type AxisWell struct {
	Field *dataset.DataField `json:"field,omitempty"`
}

// ValuesWell holds the ordered value fields. Order defines output column
// naming: the first field finalizes into "value", the second into "value2",
// and so on.
type ValuesWell struct {
	Fields []dataset.DataField `json:"fields"`
}

// LegendWell holds the optional single series-split field.
type LegendWell struct {
	Field *dataset.DataField `json:"field,omitempty"`
}

// TooltipsWell holds the ordered tooltip fields.
type TooltipsWell struct {
	Fields []dataset.DataField `json:"fields"`
}

// Mapping is the set of wells a visual's chart fields are dropped into. Each
// visual owns exactly one Mapping.
type Mapping struct {
	Axis     AxisWell     `json:"axis"`
	Values   ValuesWell   `json:"values"`
	Legend   LegendWell   `json:"legend"`
	Tooltips TooltipsWell `json:"tooltips"`
}

// NewMapping returns an empty mapping, the "not yet configured" state in
// which derivation produces no rows and the visual keeps its prior data.
func NewMapping() Mapping {
	return Mapping{
		Values:   ValuesWell{Fields: []dataset.DataField{}},
		Tooltips: TooltipsWell{Fields: []dataset.DataField{}},
	}
}

// IsConfigured reports whether derivation can run: an axis field and at least
// one value field.
func (m *Mapping) IsConfigured() bool {
	return m.Axis.Field != nil && len(m.Values.Fields) > 0
}

// Attach drops a field into a well. A field sits in at most one well per
// visual, so it is detached from every other well first. Axis and legend
// replace their occupant; values and tooltips append, ignoring a field
// already present in that well.
func (m *Mapping) Attach(kind WellKind, f dataset.DataField) {
	m.Detach(f.ID)
	switch kind {
	case WellAxis:
		field := f
		m.Axis.Field = &field
	case WellLegend:
		field := f
		m.Legend.Field = &field
	case WellValues:
		m.Values.Fields = append(m.Values.Fields, f)
	case WellTooltips:
		m.Tooltips.Fields = append(m.Tooltips.Fields, f)
	}
}

// Detach removes a field from whichever well holds it.
func (m *Mapping) Detach(fieldID string) {
	if m.Axis.Field != nil && m.Axis.Field.ID == fieldID {
		m.Axis.Field = nil
	}
	if m.Legend.Field != nil && m.Legend.Field.ID == fieldID {
		m.Legend.Field = nil
	}
	m.Values.Fields = removeField(m.Values.Fields, fieldID)
	m.Tooltips.Fields = removeField(m.Tooltips.Fields, fieldID)
}

// SetValueOption updates a value field's aggregation or granularity choice in
// place. Returns false when the field is not in the values well.
func (m *Mapping) SetValueOption(fieldID string, agg dataset.Aggregation, gran dataset.Granularity) bool {
	for i := range m.Values.Fields {
		if m.Values.Fields[i].ID == fieldID {
			if agg != "" {
				m.Values.Fields[i].Aggregation = agg
			}
			if gran != "" {
				m.Values.Fields[i].Granularity = gran
			}
			return true
		}
	}
	return false
}

// Clone deep-copies the mapping, for visual duplication.
func (m Mapping) Clone() Mapping {
	out := m
	if m.Axis.Field != nil {
		f := *m.Axis.Field
		out.Axis.Field = &f
	}
	if m.Legend.Field != nil {
		f := *m.Legend.Field
		out.Legend.Field = &f
	}
	out.Values.Fields = append([]dataset.DataField{}, m.Values.Fields...)
	out.Tooltips.Fields = append([]dataset.DataField{}, m.Tooltips.Fields...)
	return out
}

// Title derives the visual's display title from the mapping: value-field
// names joined, "by" the axis field, with a granularity suffix when the
// first value field buckets time.
func (m Mapping) Title() string {
	if !m.IsConfigured() {
		return ""
	}
	names := make([]string, 0, len(m.Values.Fields))
	for _, f := range m.Values.Fields {
		names = append(names, f.Name)
	}
	title := strings.Join(names, ", ") + " by " + m.Axis.Field.Name
	if gran := m.Values.Fields[0].Granularity; gran != "" && gran != dataset.GranNone && m.Axis.Field.IsDate() {
		title += " (" + string(gran) + ")"
	}
	return title
}

func removeField(fields []dataset.DataField, id string) []dataset.DataField {
	out := fields[:0]
	for _, f := range fields {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}
