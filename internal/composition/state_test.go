package composition

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestState() *State {
	return NewState(zerolog.Nop())
}

func TestNewState_HasDefaultSheet(t *testing.T) {
	s := newTestState()
	sheets := s.Sheets()
	if len(sheets) != 1 {
		t.Fatalf("new state has %d sheets, want 1", len(sheets))
	}
	if sheets[0].Name != "Sheet 1" {
		t.Errorf("default sheet name = %q", sheets[0].Name)
	}
	if s.FirstSheetID() != sheets[0].ID {
		t.Error("FirstSheetID should match the default sheet")
	}
}

func TestRemoveSheet_LastSheetRejected(t *testing.T) {
	s := newTestState()
	err := s.RemoveSheet(s.FirstSheetID())
	if !errors.Is(err, ErrLastSheet) {
		t.Fatalf("deleting the only sheet: err = %v, want ErrLastSheet", err)
	}

	s.AddSheet("Second")
	if err := s.RemoveSheet(s.FirstSheetID()); err != nil {
		t.Fatalf("deleting a non-last sheet: %v", err)
	}
	if len(s.Sheets()) != 1 {
		t.Errorf("sheets = %d, want 1", len(s.Sheets()))
	}
}

func TestAddSheet_DefaultName(t *testing.T) {
	s := newTestState()
	sh := s.AddSheet("")
	if sh.Name != "Sheet 2" {
		t.Errorf("auto name = %q, want Sheet 2", sh.Name)
	}
}

func TestAddVisual_SelectsIt(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()

	v, err := s.AddVisual(sheetID, ChartBar, Position{X: 10, Y: 20})
	if err != nil {
		t.Fatal(err)
	}
	if s.SelectedVisualID(sheetID) != v.ID {
		t.Error("a newly added visual becomes the selection")
	}
	if len(v.Mapping.Values.Fields) != 0 || v.Mapping.Axis.Field != nil {
		t.Error("new visual starts with an empty mapping")
	}
}

func TestAddPanel_SlotCounts(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()

	tests := []struct {
		layout LayoutTemplate
		slots  int
	}{
		{LayoutSingle, 1},
		{LayoutColumns, 2},
		{LayoutRows, 2},
		{LayoutSidebar, 2},
		{LayoutGrid, 4},
		{LayoutHeader, 2},
		{"bogus", 1}, // unknown layouts fall back to single
	}
	for _, tt := range tests {
		p, err := s.AddPanel(sheetID, tt.layout, Position{})
		if err != nil {
			t.Fatalf("%s: %v", tt.layout, err)
		}
		if len(p.Slots) != tt.slots {
			t.Errorf("layout %s: %d slots, want %d", tt.layout, len(p.Slots), tt.slots)
		}
	}
}

func TestAddVisualToSlot(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	p, _ := s.AddPanel(sheetID, LayoutColumns, Position{})
	slotID := p.Slots[0].ID

	v, err := s.AddVisualToSlot(sheetID, p.ID, slotID, ChartLine)
	if err != nil {
		t.Fatal(err)
	}
	boundID, ok := s.SlotVisualID(sheetID, p.ID, slotID)
	if !ok || boundID != v.ID {
		t.Fatalf("slot binding = %q, %v; want %q", boundID, ok, v.ID)
	}

	// Rebinding the slot replaces the binding
	v2, err := s.AddVisualToSlot(sheetID, p.ID, slotID, ChartBar)
	if err != nil {
		t.Fatal(err)
	}
	boundID, _ = s.SlotVisualID(sheetID, p.ID, slotID)
	if boundID != v2.ID {
		t.Errorf("rebound slot = %q, want %q", boundID, v2.ID)
	}

	if _, err := s.AddVisualToSlot(sheetID, p.ID, "no-such-slot", ChartBar); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown slot: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteVisual_UnbindsAndClearsSelection(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	p, _ := s.AddPanel(sheetID, LayoutSingle, Position{})
	v, _ := s.AddVisualToSlot(sheetID, p.ID, p.Slots[0].ID, ChartLine)

	var deletedID string
	s.SetHooks(func(id string) { deletedID = id }, nil)

	if err := s.DeleteVisual(sheetID, v.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.SlotVisualID(sheetID, p.ID, p.Slots[0].ID); ok {
		t.Error("slot binding should be removed with the visual")
	}
	if s.SelectedVisualID(sheetID) != "" {
		t.Error("selection should clear when the selected visual is deleted")
	}
	if deletedID != v.ID {
		t.Errorf("delete hook got %q, want %q", deletedID, v.ID)
	}
}

func TestDeleteSlicer_FiresFieldHook(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	sl, _ := s.AddSlicer(sheetID, SlicerDropdown, "platform", Position{})

	var removedField string
	s.SetHooks(nil, func(field string) { removedField = field })

	if err := s.DeleteSlicer(sheetID, sl.ID); err != nil {
		t.Fatal(err)
	}
	if removedField != "platform" {
		t.Errorf("slicer delete hook got %q, want platform", removedField)
	}
}

func TestSetSlicerSelection_AndReset(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	sl, _ := s.AddSlicer(sheetID, SlicerList, "platform", Position{})

	got, err := s.SetSlicerSelection(sheetID, sl.ID, []any{"Meta", "Google"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.SelectedValues) != 2 {
		t.Fatalf("selection = %v", got.SelectedValues)
	}

	s.ResetSlicerSelections()
	sh, _ := s.Sheet(sheetID)
	if len(sh.Slicers[0].SelectedValues) != 0 {
		t.Errorf("reset left selection %v", sh.Slicers[0].SelectedValues)
	}
}

func TestSlicerMultiSelectByType(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()

	list, _ := s.AddSlicer(sheetID, SlicerList, "platform", Position{})
	if !list.MultiSelect {
		t.Error("list slicers multi-select")
	}
	dd, _ := s.AddSlicer(sheetID, SlicerDropdown, "platform", Position{})
	if dd.MultiSelect {
		t.Error("dropdown slicers are single-select")
	}
}

func TestDuplicateVisual(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	v, _ := s.AddVisual(sheetID, ChartBar, Position{X: 100, Y: 100})

	dup, err := s.DuplicateVisual(sheetID, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dup.ID == v.ID {
		t.Error("duplicate needs a fresh id")
	}
	if dup.Position.X != 124 || dup.Position.Y != 124 {
		t.Errorf("duplicate position = %+v, want offset by 24", dup.Position)
	}
	if s.SelectedVisualID(sheetID) != dup.ID {
		t.Error("duplicate becomes the selection")
	}

	// Mutating the duplicate must not touch the original
	_, err = s.UpdateVisual(sheetID, dup.ID, func(vis *Visual) { vis.Title = "changed" })
	if err != nil {
		t.Fatal(err)
	}
	orig, _ := s.Visual(sheetID, v.ID)
	if orig.Title == "changed" {
		t.Error("duplicate shares state with the original")
	}
}

func TestMoveComponent(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	v, _ := s.AddVisual(sheetID, ChartBar, Position{X: 10, Y: 10})
	p, _ := s.AddPanel(sheetID, LayoutSingle, Position{X: 0, Y: 0})
	sl, _ := s.AddSlicer(sheetID, SlicerDropdown, "platform", Position{X: 5, Y: 5})

	for _, id := range []string{v.ID, p.ID, sl.ID} {
		if err := s.MoveComponent(sheetID, id, 3, -2); err != nil {
			t.Fatalf("move %s: %v", id, err)
		}
	}
	moved, _ := s.Visual(sheetID, v.ID)
	if moved.Position.X != 13 || moved.Position.Y != 8 {
		t.Errorf("visual position = %+v", moved.Position)
	}

	if err := s.MoveComponent(sheetID, "nope", 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown component: err = %v, want ErrNotFound", err)
	}
}

func TestSelectVisual_Validation(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()

	if err := s.SelectVisual(sheetID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("selecting a missing visual: err = %v", err)
	}
	// Empty id clears the selection
	if err := s.SelectVisual(sheetID, ""); err != nil {
		t.Errorf("clearing selection: %v", err)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	s := newTestState()
	sheetID := s.FirstSheetID()
	p, _ := s.AddPanel(sheetID, LayoutColumns, Position{X: 1, Y: 2})
	v, _ := s.AddVisualToSlot(sheetID, p.ID, p.Slots[1].ID, ChartLine)
	s.AddSlicer(sheetID, SlicerList, "platform", Position{})
	s.AddSheet("Second")

	raw, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	restored := newTestState()
	if err := restored.Restore(raw); err != nil {
		t.Fatal(err)
	}

	sheets := restored.Sheets()
	if len(sheets) != 2 {
		t.Fatalf("restored sheets = %d, want 2", len(sheets))
	}
	boundID, ok := restored.SlotVisualID(sheetID, p.ID, p.Slots[1].ID)
	if !ok || boundID != v.ID {
		t.Errorf("restored slot binding = %q, %v; want %q", boundID, ok, v.ID)
	}
	if restored.SelectedVisualID(sheetID) != v.ID {
		t.Error("selection should survive the round trip")
	}
	sh, err := restored.Sheet(sheetID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sh.Slicers) != 1 || sh.Slicers[0].Field != "platform" {
		t.Errorf("restored slicers = %+v", sh.Slicers)
	}
}

func TestRestore_RejectsSheetlessDocument(t *testing.T) {
	s := newTestState()
	if err := s.Restore([]byte(`{"version":1,"sheets":[]}`)); err == nil {
		t.Fatal("sheetless document must be rejected")
	}
	if err := s.Restore([]byte(`not json`)); err == nil {
		t.Fatal("malformed document must be rejected")
	}
	// The live tree is untouched after a failed restore
	if len(s.Sheets()) != 1 {
		t.Errorf("sheets = %d after failed restore, want 1", len(s.Sheets()))
	}
}

func TestValidateDocument(t *testing.T) {
	if err := ValidateDocument([]byte(`{"version":1,"sheets":[{"id":"s1","name":"A"}]}`)); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
	if err := ValidateDocument([]byte(`{"version":1,"sheets":[]}`)); err == nil {
		t.Error("sheetless document accepted")
	}
}
