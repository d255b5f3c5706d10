package composition

import (
	"github.com/google/uuid"

	"github.com/plotform-labs/plotform/internal/pipeline"
)

// ChartType names the rendering a visual asks of the chart library.
type ChartType string

const (
	ChartLine  ChartType = "line"
	ChartBar   ChartType = "bar"
	ChartArea  ChartType = "area"
	ChartPie   ChartType = "pie"
	ChartTable ChartType = "table"
	ChartCard  ChartType = "card"
)

// LayoutTemplate names a panel's slot arrangement.
type LayoutTemplate string

const (
	LayoutSingle  LayoutTemplate = "single"
	LayoutColumns LayoutTemplate = "columns"
	LayoutRows    LayoutTemplate = "rows"
	LayoutSidebar LayoutTemplate = "sidebar"
	LayoutGrid    LayoutTemplate = "grid"
	LayoutHeader  LayoutTemplate = "header"
)

// slotCounts maps each layout template to the number of slots it creates.
var slotCounts = map[LayoutTemplate]int{
	LayoutSingle:  1,
	LayoutColumns: 2,
	LayoutRows:    2,
	LayoutSidebar: 2,
	LayoutGrid:    4,
	LayoutHeader:  2,
}

// SlicerType names a filter widget's UI shape.
type SlicerType string

const (
	SlicerDropdown     SlicerType = "dropdown"
	SlicerList         SlicerType = "list"
	SlicerDateRange    SlicerType = "date-range"
	SlicerNumericRange SlicerType = "numeric-range"
)

// Position is a component's canvas placement.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Visual is a single chart instance: its own field mapping, derived rows and
// canvas placement. A visual may live standalone on the canvas or be
// referenced by a panel slot; the slot holds a reference, not ownership.
type Visual struct {
	ID       string           `json:"id"`
	Type     ChartType        `json:"type"`
	Title    string           `json:"title,omitempty"`
	Position Position         `json:"position"`
	Mapping  pipeline.Mapping `json:"mapping"`

	// Rows is the last derived dataset. It survives mapping edits that make
	// the mapping unconfigured: derivation no-ops and the prior data keeps
	// rendering.
	Rows []pipeline.ChartRow `json:"rows,omitempty"`
}

// Slot is a position inside a panel. The visual it shows, if any, lives in
// the panel's binding map.
type Slot struct {
	ID string `json:"id"`
}

// Panel is a layout container holding slots arranged per its template.
// Bindings maps slot id -> visual id; it serializes as a pair list (see
// serialize.go) since the document store wants plain arrays.
type Panel struct {
	ID       string            `json:"id"`
	Layout   LayoutTemplate    `json:"layout"`
	Position Position          `json:"position"`
	Slots    []Slot            `json:"slots"`
	Bindings map[string]string `json:"-"`
}

// Slicer is a standalone filter widget bound to one field. SelectedValues is
// UI state only; the filter store owns the predicate derived from it.
type Slicer struct {
	ID             string     `json:"id"`
	Type           SlicerType `json:"type"`
	Field          string     `json:"field"`
	SelectedValues []any      `json:"selectedValues"`
	MultiSelect    bool       `json:"multiSelect"`
	Position       Position   `json:"position"`
}

// Sheet is one report page: panels, standalone visuals and slicers, plus the
// current visual selection that field drops apply to.
type Sheet struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Panels           []*Panel  `json:"panels"`
	Visuals          []*Visual `json:"visuals"`
	Slicers          []*Slicer `json:"slicers"`
	SelectedVisualID string    `json:"selectedVisualId,omitempty"`
}

func newID() string {
	return uuid.New().String()
}

func newVisual(chart ChartType, pos Position) *Visual {
	return &Visual{
		ID:       newID(),
		Type:     chart,
		Position: pos,
		Mapping:  pipeline.NewMapping(),
	}
}

func newPanel(layout LayoutTemplate, pos Position) *Panel {
	count, ok := slotCounts[layout]
	if !ok {
		layout = LayoutSingle
		count = 1
	}
	slots := make([]Slot, count)
	for i := range slots {
		slots[i] = Slot{ID: newID()}
	}
	return &Panel{
		ID:       newID(),
		Layout:   layout,
		Position: pos,
		Slots:    slots,
		Bindings: make(map[string]string),
	}
}

func newSlicer(st SlicerType, field string, pos Position) *Slicer {
	return &Slicer{
		ID:             newID(),
		Type:           st,
		Field:          field,
		SelectedValues: []any{},
		MultiSelect:    st == SlicerList,
		Position:       pos,
	}
}
