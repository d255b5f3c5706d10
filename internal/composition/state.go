package composition

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/pipeline"
)

// ErrLastSheet rejects deleting the only remaining sheet.
var ErrLastSheet = errors.New("cannot delete the last remaining sheet")

// ErrNotFound reports a missing sheet or component.
var ErrNotFound = errors.New("not found")

// State is the composition tree: sheets holding panels, visuals and slicers.
// It is mutated only through the methods below — each one is a single
// synchronous critical section, so the intent router's resolved actions and
// the explicit editing actions are the only writers, never ad hoc mutation.
type State struct {
	mu     sync.RWMutex
	sheets []*Sheet
	logger zerolog.Logger

	// onVisualDeleted lets the wiring layer clear the cross-filter when its
	// source visual goes away. onSlicerDeleted removes the slicer's filter.
	onVisualDeleted func(visualID string)
	onSlicerDeleted func(field string)
}

// NewState creates a composition with one default sheet.
func NewState(logger zerolog.Logger) *State {
	s := &State{logger: logger.With().Str("component", "composition").Logger()}
	s.sheets = []*Sheet{{
		ID:      newID(),
		Name:    "Sheet 1",
		Panels:  []*Panel{},
		Visuals: []*Visual{},
		Slicers: []*Slicer{},
	}}
	return s
}

// SetHooks registers the deletion callbacks. Wiring-time only.
func (s *State) SetHooks(onVisualDeleted func(string), onSlicerDeleted func(string)) {
	s.mu.Lock()
	s.onVisualDeleted = onVisualDeleted
	s.onSlicerDeleted = onSlicerDeleted
	s.mu.Unlock()
}

// Sheets returns sheet summaries (id and name) in order.
func (s *State) Sheets() []struct{ ID, Name string } {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]struct{ ID, Name string }, len(s.sheets))
	for i, sh := range s.sheets {
		out[i].ID = sh.ID
		out[i].Name = sh.Name
	}
	return out
}

// FirstSheetID returns the id of the first sheet.
func (s *State) FirstSheetID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sheets[0].ID
}

// AddSheet appends a new empty sheet.
func (s *State) AddSheet(name string) *Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("Sheet %d", len(s.sheets)+1)
	}
	sh := &Sheet{ID: newID(), Name: name, Panels: []*Panel{}, Visuals: []*Visual{}, Slicers: []*Slicer{}}
	s.sheets = append(s.sheets, sh)
	s.logger.Info().Str("sheet_id", sh.ID).Str("name", name).Msg("Sheet added")
	return sh
}

// RemoveSheet deletes a sheet. Deleting the last remaining sheet is rejected
// at this boundary — a minimum-cardinality invariant, not an error condition
// callers should panic over.
func (s *State) RemoveSheet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sheets) <= 1 {
		return ErrLastSheet
	}
	for i, sh := range s.sheets {
		if sh.ID == id {
			s.sheets = append(s.sheets[:i], s.sheets[i+1:]...)
			s.logger.Info().Str("sheet_id", id).Msg("Sheet removed")
			return nil
		}
	}
	return fmt.Errorf("sheet %s: %w", id, ErrNotFound)
}

// Sheet returns a deep snapshot of one sheet for serving.
func (s *State) Sheet(id string) (*Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh := s.findSheet(id)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", id, ErrNotFound)
	}
	return cloneSheet(sh), nil
}

// AddPanel instantiates a panel with slots sized per the layout template.
func (s *State) AddPanel(sheetID string, layout LayoutTemplate, pos Position) (*Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	p := newPanel(layout, pos)
	sh.Panels = append(sh.Panels, p)
	s.logger.Debug().Str("panel_id", p.ID).Str("layout", string(layout)).Msg("Panel added")
	return clonePanel(p), nil
}

// AddVisual instantiates a standalone visual on the canvas and selects it.
func (s *State) AddVisual(sheetID string, chart ChartType, pos Position) (*Visual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	v := newVisual(chart, pos)
	sh.Visuals = append(sh.Visuals, v)
	sh.SelectedVisualID = v.ID
	s.logger.Debug().Str("visual_id", v.ID).Str("chart", string(chart)).Msg("Visual added")
	return cloneVisual(v), nil
}

// AddVisualToSlot instantiates a visual and binds it into a panel slot,
// replacing any prior binding. The visual also joins the sheet's visual list
// (slots reference, they do not own).
func (s *State) AddVisualToSlot(sheetID, panelID, slotID string, chart ChartType) (*Visual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	p := findPanel(sh, panelID)
	if p == nil {
		return nil, fmt.Errorf("panel %s: %w", panelID, ErrNotFound)
	}
	if !hasSlot(p, slotID) {
		return nil, fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	v := newVisual(chart, p.Position)
	sh.Visuals = append(sh.Visuals, v)
	p.Bindings[slotID] = v.ID
	sh.SelectedVisualID = v.ID
	s.logger.Debug().
		Str("visual_id", v.ID).
		Str("panel_id", panelID).
		Str("slot_id", slotID).
		Msg("Visual bound into slot")
	return cloneVisual(v), nil
}

// SlotVisualID resolves the visual bound to a slot, if any.
func (s *State) SlotVisualID(sheetID, panelID, slotID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return "", false
	}
	p := findPanel(sh, panelID)
	if p == nil {
		return "", false
	}
	id, ok := p.Bindings[slotID]
	return id, ok
}

// AddSlicer instantiates a slicer bound to a field.
func (s *State) AddSlicer(sheetID string, st SlicerType, field string, pos Position) (*Slicer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	sl := newSlicer(st, field, pos)
	sh.Slicers = append(sh.Slicers, sl)
	s.logger.Debug().Str("slicer_id", sl.ID).Str("field", field).Msg("Slicer added")
	return cloneSlicer(sl), nil
}

// DeleteSlicer removes a slicer and notifies the wiring layer so the field's
// filter goes with it.
func (s *State) DeleteSlicer(sheetID, slicerID string) error {
	s.mu.Lock()
	var field string
	var found bool
	sh := s.findSheet(sheetID)
	if sh != nil {
		for i, sl := range sh.Slicers {
			if sl.ID == slicerID {
				field = sl.Field
				sh.Slicers = append(sh.Slicers[:i], sh.Slicers[i+1:]...)
				found = true
				break
			}
		}
	}
	hook := s.onSlicerDeleted
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("slicer %s: %w", slicerID, ErrNotFound)
	}
	if hook != nil {
		hook(field)
	}
	return nil
}

// SetSlicerSelection replaces a slicer's selected values. The caller
// translates the selection into a filter store update; the slicer itself
// never owns predicate state.
func (s *State) SetSlicerSelection(sheetID, slicerID string, values []any) (*Slicer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	for _, sl := range sh.Slicers {
		if sl.ID == slicerID {
			if values == nil {
				values = []any{}
			}
			sl.SelectedValues = values
			return cloneSlicer(sl), nil
		}
	}
	return nil, fmt.Errorf("slicer %s: %w", slicerID, ErrNotFound)
}

// ResetSlicerSelections empties every slicer's selection on every sheet.
// Invoked by the filter store's clear hook.
func (s *State) ResetSlicerSelections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.sheets {
		for _, sl := range sh.Slicers {
			sl.SelectedValues = []any{}
		}
	}
}

// SelectVisual marks the visual that subsequent field drops configure.
func (s *State) SelectVisual(sheetID, visualID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	if visualID != "" && findVisual(sh, visualID) == nil {
		return fmt.Errorf("visual %s: %w", visualID, ErrNotFound)
	}
	sh.SelectedVisualID = visualID
	return nil
}

// SelectedVisualID returns the sheet's current selection.
func (s *State) SelectedVisualID(sheetID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return ""
	}
	return sh.SelectedVisualID
}

// Visual returns a deep copy of one visual.
func (s *State) Visual(sheetID, visualID string) (*Visual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	v := findVisual(sh, visualID)
	if v == nil {
		return nil, fmt.Errorf("visual %s: %w", visualID, ErrNotFound)
	}
	return cloneVisual(v), nil
}

// FindVisual locates a visual across all sheets.
func (s *State) FindVisual(visualID string) (sheetID string, v *Visual, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.sheets {
		if vis := findVisual(sh, visualID); vis != nil {
			return sh.ID, cloneVisual(vis), nil
		}
	}
	return "", nil, fmt.Errorf("visual %s: %w", visualID, ErrNotFound)
}

// UpdateVisual applies a mutation to one visual under the state lock. This
// is the single entry point the intent router uses for mapping edits and
// derived-row installs.
func (s *State) UpdateVisual(sheetID, visualID string, fn func(*Visual)) (*Visual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	v := findVisual(sh, visualID)
	if v == nil {
		return nil, fmt.Errorf("visual %s: %w", visualID, ErrNotFound)
	}
	fn(v)
	return cloneVisual(v), nil
}

// DuplicateVisual deep-copies a visual under a fresh id, offset slightly so
// the copy is visible.
func (s *State) DuplicateVisual(sheetID, visualID string) (*Visual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	v := findVisual(sh, visualID)
	if v == nil {
		return nil, fmt.Errorf("visual %s: %w", visualID, ErrNotFound)
	}
	dup := cloneVisual(v)
	dup.ID = newID()
	dup.Position.X += 24
	dup.Position.Y += 24
	sh.Visuals = append(sh.Visuals, dup)
	sh.SelectedVisualID = dup.ID
	s.logger.Debug().Str("visual_id", visualID).Str("copy_id", dup.ID).Msg("Visual duplicated")
	return cloneVisual(dup), nil
}

// DeleteVisual removes a visual, unbinds it from any slot, clears the
// selection if it pointed at it, and notifies the wiring layer so the
// cross-filter clears when this visual was its source.
func (s *State) DeleteVisual(sheetID, visualID string) error {
	s.mu.Lock()
	var found bool
	sh := s.findSheet(sheetID)
	if sh != nil {
		for i, v := range sh.Visuals {
			if v.ID == visualID {
				sh.Visuals = append(sh.Visuals[:i], sh.Visuals[i+1:]...)
				found = true
				break
			}
		}
		if found {
			for _, p := range sh.Panels {
				for slotID, boundID := range p.Bindings {
					if boundID == visualID {
						delete(p.Bindings, slotID)
					}
				}
			}
			if sh.SelectedVisualID == visualID {
				sh.SelectedVisualID = ""
			}
		}
	}
	hook := s.onVisualDeleted
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("visual %s: %w", visualID, ErrNotFound)
	}
	if hook != nil {
		hook(visualID)
	}
	s.logger.Debug().Str("visual_id", visualID).Msg("Visual deleted")
	return nil
}

// MoveComponent repositions a panel, visual or slicer by a pointer delta.
// Pure repositioning, no structural change.
func (s *State) MoveComponent(sheetID, componentID string, dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.findSheet(sheetID)
	if sh == nil {
		return fmt.Errorf("sheet %s: %w", sheetID, ErrNotFound)
	}
	for _, p := range sh.Panels {
		if p.ID == componentID {
			p.Position.X += dx
			p.Position.Y += dy
			return nil
		}
	}
	for _, v := range sh.Visuals {
		if v.ID == componentID {
			v.Position.X += dx
			v.Position.Y += dy
			return nil
		}
	}
	for _, sl := range sh.Slicers {
		if sl.ID == componentID {
			sl.Position.X += dx
			sl.Position.Y += dy
			return nil
		}
	}
	return fmt.Errorf("component %s: %w", componentID, ErrNotFound)
}

func (s *State) findSheet(id string) *Sheet {
	for _, sh := range s.sheets {
		if sh.ID == id {
			return sh
		}
	}
	return nil
}

func findPanel(sh *Sheet, id string) *Panel {
	for _, p := range sh.Panels {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func hasSlot(p *Panel, slotID string) bool {
	for _, sl := range p.Slots {
		if sl.ID == slotID {
			return true
		}
	}
	return false
}

func findVisual(sh *Sheet, id string) *Visual {
	for _, v := range sh.Visuals {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func cloneVisual(v *Visual) *Visual {
	out := *v
	out.Mapping = v.Mapping.Clone()
	out.Rows = append([]pipeline.ChartRow{}, v.Rows...)
	return &out
}

func clonePanel(p *Panel) *Panel {
	out := *p
	out.Slots = append([]Slot{}, p.Slots...)
	out.Bindings = make(map[string]string, len(p.Bindings))
	for k, v := range p.Bindings {
		out.Bindings[k] = v
	}
	return &out
}

func cloneSlicer(sl *Slicer) *Slicer {
	out := *sl
	out.SelectedValues = append([]any{}, sl.SelectedValues...)
	return &out
}

func cloneSheet(sh *Sheet) *Sheet {
	out := *sh
	out.Panels = make([]*Panel, len(sh.Panels))
	for i, p := range sh.Panels {
		out.Panels[i] = clonePanel(p)
	}
	out.Visuals = make([]*Visual, len(sh.Visuals))
	for i, v := range sh.Visuals {
		out.Visuals[i] = cloneVisual(v)
	}
	out.Slicers = make([]*Slicer, len(sh.Slicers))
	for i, sl := range sh.Slicers {
		out.Slicers[i] = cloneSlicer(sl)
	}
	return &out
}
