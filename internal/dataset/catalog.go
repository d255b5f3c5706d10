package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// FieldRole describes how a field is intended to be used on a chart.
type FieldRole string

const (
	RoleMetric    FieldRole = "metric"
	RoleDimension FieldRole = "dimension"
)

// FieldType is the underlying scalar type of a field's values.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// Aggregation names a finalizer applied to a grouped value field.
type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggCount Aggregation = "count"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// Granularity is the time bucket applied to a date axis.
type Granularity string

const (
	GranNone    Granularity = "none"
	GranDay     Granularity = "day"
	GranWeek    Granularity = "week"
	GranMonth   Granularity = "month"
	GranQuarter Granularity = "quarter"
	GranYear    Granularity = "year"
)

// DataField describes one column of the record set and, when dropped into a
// values well, how to aggregate and bucket it. Fields are owned by the
// catalog; composition state references them by value but identity is the ID.
type DataField struct {
	ID          string      `json:"id"` // record key, e.g. "campaign_name"
	Name        string      `json:"name"`
	Role        FieldRole   `json:"role"`
	Type        FieldType   `json:"type"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Granularity Granularity `json:"timeGranularity,omitempty"`
}

// IsDate reports whether the field's values are date-typed, which gates time
// bucketing on the axis.
func (f DataField) IsDate() bool {
	return f.Type == TypeDate
}

// Catalog is the static list of available fields per logical table. The
// engine never discovers fields dynamically; the catalog comes from
// configuration or ships with defaults.
type Catalog struct {
	fields []DataField
	byID   map[string]DataField
}

// NewCatalog builds a catalog from a field list. Duplicate IDs keep the first
// definition.
func NewCatalog(fields []DataField) *Catalog {
	c := &Catalog{byID: make(map[string]DataField, len(fields))}
	for _, f := range fields {
		if _, dup := c.byID[f.ID]; dup {
			continue
		}
		if f.Aggregation == "" && f.Role == RoleMetric {
			f.Aggregation = AggSum
		}
		if f.Granularity == "" {
			f.Granularity = GranNone
		}
		c.fields = append(c.fields, f)
		c.byID[f.ID] = f
	}
	return c
}

// LoadCatalog reads a catalog definition from a JSON file. An empty path
// returns the built-in default catalog.
func LoadCatalog(path string, logger zerolog.Logger) (*Catalog, error) {
	if path == "" {
		logger.Debug().Msg("No catalog file configured, using built-in default")
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field catalog: %w", err)
	}
	var fields []DataField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse field catalog %s: %w", path, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("field catalog %s defines no fields", path)
	}
	logger.Info().Str("path", path).Int("fields", len(fields)).Msg("Field catalog loaded")
	return NewCatalog(fields), nil
}

// DefaultCatalog returns the built-in marketing-report field set.
func DefaultCatalog() *Catalog {
	return NewCatalog([]DataField{
		{ID: "campaign_name", Name: "Campaign", Role: RoleDimension, Type: TypeString},
		{ID: "platform", Name: "Platform", Role: RoleDimension, Type: TypeString},
		{ID: "date", Name: "Date", Role: RoleDimension, Type: TypeDate},
		{ID: "spend", Name: "Spend", Role: RoleMetric, Type: TypeNumber, Aggregation: AggSum},
		{ID: "clicks", Name: "Clicks", Role: RoleMetric, Type: TypeNumber, Aggregation: AggSum},
		{ID: "impressions", Name: "Impressions", Role: RoleMetric, Type: TypeNumber, Aggregation: AggSum},
		{ID: "conversions", Name: "Conversions", Role: RoleMetric, Type: TypeNumber, Aggregation: AggSum},
	})
}

// Fields returns the catalog fields in declaration order.
func (c *Catalog) Fields() []DataField {
	out := make([]DataField, len(c.fields))
	copy(out, c.fields)
	return out
}

// Lookup resolves a field by ID.
func (c *Catalog) Lookup(id string) (DataField, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// NaturalCategory returns the first non-date dimension field, used as the
// implicit axis for the quick-bind drop path and as the default slicer field.
func (c *Catalog) NaturalCategory() (DataField, bool) {
	for _, f := range c.fields {
		if f.Role == RoleDimension && !f.IsDate() {
			return f, true
		}
	}
	for _, f := range c.fields {
		if f.Role == RoleDimension {
			return f, true
		}
	}
	return DataField{}, false
}
