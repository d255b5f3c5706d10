package intent

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/composition"
	"github.com/plotform-labs/plotform/internal/dataset"
	"github.com/plotform-labs/plotform/internal/filter"
	"github.com/plotform-labs/plotform/internal/pipeline"
)

type staticRecords []dataset.Record

func (s staticRecords) Records() []dataset.Record { return s }

func testCatalog() *dataset.Catalog {
	return dataset.NewCatalog([]dataset.DataField{
		{ID: "platform", Name: "Platform", Role: dataset.RoleDimension, Type: dataset.TypeString},
		{ID: "date", Name: "Date", Role: dataset.RoleDimension, Type: dataset.TypeDate},
		{ID: "spend", Name: "Spend", Role: dataset.RoleMetric, Type: dataset.TypeNumber, Aggregation: dataset.AggSum},
	})
}

func testRouter() (*Router, *composition.State, string) {
	state := composition.NewState(zerolog.Nop())
	records := staticRecords{
		{"platform": "Meta", "spend": 10.0},
		{"platform": "Google", "spend": 5.0},
	}
	r := NewRouter(state, testCatalog(), records, filter.NewStore(zerolog.Nop()), zerolog.Nop())
	return r, state, state.FirstSheetID()
}

func strp(s string) *string { return &s }

func TestResolve_ChartTypeOntoCanvas(t *testing.T) {
	r, state, sheetID := testRouter()

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID: "chart-line",
		TargetID: strp("canvas"),
		Delta:    Delta{X: 50, Y: 60},
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionCreateVisual || act.VisualID == "" {
		t.Fatalf("action = %+v", act)
	}

	v, err := state.Visual(sheetID, act.VisualID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Type != composition.ChartLine {
		t.Errorf("chart type = %s, want line", v.Type)
	}
	if v.Mapping.IsConfigured() {
		t.Error("a palette-created visual starts unconfigured")
	}
	if v.Position.X != 50 || v.Position.Y != 60 {
		t.Errorf("position = %+v", v.Position)
	}
}

func TestResolve_ChartTypeIntoSlot(t *testing.T) {
	r, state, sheetID := testRouter()
	p, _ := state.AddPanel(sheetID, composition.LayoutColumns, composition.Position{})

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID:      "chart-bar",
		TargetID:      strp("slot-" + p.Slots[0].ID),
		TargetPayload: map[string]any{"panelId": p.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionBindVisual || act.SlotID != p.Slots[0].ID {
		t.Fatalf("action = %+v", act)
	}
	boundID, ok := state.SlotVisualID(sheetID, p.ID, p.Slots[0].ID)
	if !ok || boundID != act.VisualID {
		t.Errorf("slot binding = %q, %v", boundID, ok)
	}
}

func TestResolve_LayoutOntoCanvas(t *testing.T) {
	r, state, sheetID := testRouter()

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID: "layout-grid",
		TargetID: strp("canvas"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionCreatePanel {
		t.Fatalf("action = %+v", act)
	}
	sh, _ := state.Sheet(sheetID)
	if len(sh.Panels) != 1 || len(sh.Panels[0].Slots) != 4 {
		t.Errorf("panels = %+v", sh.Panels)
	}
}

func TestResolve_LayoutOntoSlotRejected(t *testing.T) {
	r, state, sheetID := testRouter()
	p, _ := state.AddPanel(sheetID, composition.LayoutSingle, composition.Position{})

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID:      "layout-columns",
		TargetID:      strp("slot-" + p.Slots[0].ID),
		TargetPayload: map[string]any{"panelId": p.ID},
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
}

func TestResolve_FieldOntoWellWithoutSelectionRejected(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{})
	state.SelectVisual(sheetID, "") // deselect

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID: "field-spend",
		TargetID: strp("well-values"),
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}

	// No mutation happened
	after, _ := state.Visual(sheetID, v.ID)
	if after.Mapping.IsConfigured() || len(after.Mapping.Values.Fields) != 0 {
		t.Error("rejected drop must leave the visual untouched")
	}
}

func TestResolve_FieldOntoWellAttachesAndDerives(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{})

	if _, err := r.Resolve(sheetID, DragEvent{
		SourceID: "field-platform",
		TargetID: strp("well-axis"),
	}); err != nil {
		t.Fatal(err)
	}
	act, err := r.Resolve(sheetID, DragEvent{
		SourceID: "field-spend",
		TargetID: strp("well-values"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionAttachField || act.Well != pipeline.WellValues {
		t.Fatalf("action = %+v", act)
	}
	if len(act.Rows) != 2 {
		t.Fatalf("derived rows = %d, want 2", len(act.Rows))
	}

	after, _ := state.Visual(sheetID, v.ID)
	if after.Title != "Spend by Platform" {
		t.Errorf("title = %q", after.Title)
	}
}

func TestResolve_QuickBindOntoVisual(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{})

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID: "field-spend",
		TargetID: strp("visual-" + v.ID),
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionQuickBind {
		t.Fatalf("action = %+v", act)
	}

	after, _ := state.Visual(sheetID, v.ID)
	if after.Mapping.Axis.Field == nil || after.Mapping.Axis.Field.ID != "platform" {
		t.Errorf("quick bind axis = %+v, want the natural category", after.Mapping.Axis.Field)
	}
	if len(after.Mapping.Values.Fields) != 1 || after.Mapping.Values.Fields[0].ID != "spend" {
		t.Errorf("quick bind values = %+v", after.Mapping.Values.Fields)
	}
	if len(after.Rows) != 2 {
		t.Errorf("derived rows = %d, want 2", len(after.Rows))
	}
}

func TestResolve_QuickBindDimensionRejected(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{})

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID: "field-platform",
		TargetID: strp("visual-" + v.ID),
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection for a dimension field", err)
	}
}

func TestResolve_FieldOntoUnboundSlotRejected(t *testing.T) {
	r, state, sheetID := testRouter()
	p, _ := state.AddPanel(sheetID, composition.LayoutSingle, composition.Position{})

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID:      "field-spend",
		TargetID:      strp("slot-" + p.Slots[0].ID),
		TargetPayload: map[string]any{"panelId": p.ID},
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
}

func TestResolve_FieldOntoBoundSlotQuickBinds(t *testing.T) {
	r, state, sheetID := testRouter()
	p, _ := state.AddPanel(sheetID, composition.LayoutSingle, composition.Position{})
	v, _ := state.AddVisualToSlot(sheetID, p.ID, p.Slots[0].ID, composition.ChartBar)

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID:      "field-spend",
		TargetID:      strp("slot-" + p.Slots[0].ID),
		TargetPayload: map[string]any{"panelId": p.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionQuickBind || act.VisualID != v.ID {
		t.Fatalf("action = %+v", act)
	}
}

func TestResolve_SlicerOntoCanvas(t *testing.T) {
	r, state, sheetID := testRouter()

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID: "slicer-dropdown",
		TargetID: strp("canvas"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionCreateSlicer || act.FieldID != "platform" {
		t.Fatalf("action = %+v, want slicer bound to the natural category", act)
	}
	sh, _ := state.Sheet(sheetID)
	if len(sh.Slicers) != 1 {
		t.Errorf("slicers = %d", len(sh.Slicers))
	}
}

func TestResolve_SlicerOntoVisualRejected(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{})

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID: "slicer-list",
		TargetID: strp("visual-" + v.ID),
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
}

func TestResolve_MoveComponent(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{X: 10, Y: 10})

	act, err := r.Resolve(sheetID, DragEvent{
		SourceID: "component-" + v.ID,
		TargetID: strp("canvas"),
		Delta:    Delta{X: 5, Y: -3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != ActionMove {
		t.Fatalf("action = %+v", act)
	}
	after, _ := state.Visual(sheetID, v.ID)
	if after.Position.X != 15 || after.Position.Y != 7 {
		t.Errorf("position = %+v", after.Position)
	}
}

func TestResolve_AbortedDragCreatesNoSlicer(t *testing.T) {
	r, state, sheetID := testRouter()

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID: "slicer-dropdown",
		TargetID: nil, // released outside every drop zone
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
	sh, _ := state.Sheet(sheetID)
	if len(sh.Slicers) != 0 {
		t.Errorf("slicers = %d, an aborted drag must leave state untouched", len(sh.Slicers))
	}
}

func TestResolve_AbortedDragMovesNothing(t *testing.T) {
	r, state, sheetID := testRouter()
	v, _ := state.AddVisual(sheetID, composition.ChartBar, composition.Position{X: 10, Y: 10})

	_, err := r.Resolve(sheetID, DragEvent{
		SourceID: "component-" + v.ID,
		TargetID: nil,
		Delta:    Delta{X: 50, Y: 50},
	})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
	after, _ := state.Visual(sheetID, v.ID)
	if after.Position.X != 10 || after.Position.Y != 10 {
		t.Errorf("position = %+v, an aborted drag must leave state untouched", after.Position)
	}
}

func TestResolve_UnknownSourceRejected(t *testing.T) {
	r, _, sheetID := testRouter()
	_, err := r.Resolve(sheetID, DragEvent{SourceID: "mystery-thing", TargetID: strp("canvas")})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
}

func TestResolve_UnknownFieldRejected(t *testing.T) {
	r, _, sheetID := testRouter()
	_, err := r.Resolve(sheetID, DragEvent{SourceID: "field-nope", TargetID: strp("canvas")})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
}

func TestDecodeTarget(t *testing.T) {
	if got := DecodeTarget(nil, nil); got.Kind != TargetNone {
		t.Errorf("nil target = %v", got.Kind)
	}
	if got := DecodeTarget(strp("well-bogus"), nil); got.Kind != TargetUnknown {
		t.Errorf("bad well = %v", got.Kind)
	}
	got := DecodeTarget(strp("slot-s1"), map[string]any{"panelId": "p1"})
	if got.Kind != TargetSlot || got.SlotID != "s1" || got.PanelID != "p1" {
		t.Errorf("slot target = %+v", got)
	}
}
