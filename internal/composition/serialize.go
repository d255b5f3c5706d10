package composition

import (
	"encoding/json"
	"fmt"
)

// Document is the persisted, plain-JSON form of the composition tree. Panel
// slot-to-visual bindings live in a native map in memory; the document store
// wants plain arrays, so they serialize as {slotId, visualId} pairs and are
// rebuilt into the map on load.
type Document struct {
	Version int         `json:"version"`
	Sheets  []*sheetDoc `json:"sheets"`
}

const documentVersion = 1

type sheetDoc struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Panels           []panelDoc `json:"panels"`
	Visuals          []*Visual  `json:"visuals"`
	Slicers          []*Slicer  `json:"slicers"`
	SelectedVisualID string     `json:"selectedVisualId,omitempty"`
}

type panelDoc struct {
	ID       string         `json:"id"`
	Layout   LayoutTemplate `json:"layout"`
	Position Position       `json:"position"`
	Slots    []Slot         `json:"slots"`
	Bindings []slotBinding  `json:"bindings"`
}

type slotBinding struct {
	SlotID   string `json:"slotId"`
	VisualID string `json:"visualId"`
}

// Snapshot serializes the full composition tree.
func (s *State) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := Document{Version: documentVersion}
	for _, sh := range s.sheets {
		sd := &sheetDoc{
			ID:               sh.ID,
			Name:             sh.Name,
			Visuals:          make([]*Visual, len(sh.Visuals)),
			Slicers:          make([]*Slicer, len(sh.Slicers)),
			SelectedVisualID: sh.SelectedVisualID,
		}
		for i, v := range sh.Visuals {
			sd.Visuals[i] = cloneVisual(v)
		}
		for i, sl := range sh.Slicers {
			sd.Slicers[i] = cloneSlicer(sl)
		}
		for _, p := range sh.Panels {
			pd := panelDoc{
				ID:       p.ID,
				Layout:   p.Layout,
				Position: p.Position,
				Slots:    append([]Slot{}, p.Slots...),
				Bindings: make([]slotBinding, 0, len(p.Bindings)),
			}
			// Deterministic order: walk slots, not the map.
			for _, slot := range p.Slots {
				if visualID, ok := p.Bindings[slot.ID]; ok {
					pd.Bindings = append(pd.Bindings, slotBinding{SlotID: slot.ID, VisualID: visualID})
				}
			}
			sd.Panels = append(sd.Panels, pd)
		}
		if sd.Panels == nil {
			sd.Panels = []panelDoc{}
		}
		doc.Sheets = append(doc.Sheets, sd)
	}
	return json.Marshal(doc)
}

// ValidateDocument checks that raw parses as a composition document with at
// least one sheet, without touching any live state.
func ValidateDocument(raw []byte) error {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse composition document: %w", err)
	}
	if len(doc.Sheets) == 0 {
		return fmt.Errorf("composition document contains no sheets")
	}
	return nil
}

// Restore replaces the composition tree from a serialized document. An empty
// or sheetless document is rejected so the one-sheet-minimum invariant holds
// after load.
func (s *State) Restore(raw []byte) error {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse composition document: %w", err)
	}
	if len(doc.Sheets) == 0 {
		return fmt.Errorf("composition document contains no sheets")
	}

	sheets := make([]*Sheet, 0, len(doc.Sheets))
	for _, sd := range doc.Sheets {
		sh := &Sheet{
			ID:               sd.ID,
			Name:             sd.Name,
			Visuals:          sd.Visuals,
			Slicers:          sd.Slicers,
			SelectedVisualID: sd.SelectedVisualID,
			Panels:           make([]*Panel, 0, len(sd.Panels)),
		}
		if sh.Visuals == nil {
			sh.Visuals = []*Visual{}
		}
		if sh.Slicers == nil {
			sh.Slicers = []*Slicer{}
		}
		for _, sl := range sh.Slicers {
			if sl.SelectedValues == nil {
				sl.SelectedValues = []any{}
			}
		}
		for _, pd := range sd.Panels {
			p := &Panel{
				ID:       pd.ID,
				Layout:   pd.Layout,
				Position: pd.Position,
				Slots:    pd.Slots,
				Bindings: make(map[string]string, len(pd.Bindings)),
			}
			for _, b := range pd.Bindings {
				p.Bindings[b.SlotID] = b.VisualID
			}
			sh.Panels = append(sh.Panels, p)
		}
		sheets = append(sheets, sh)
	}

	s.mu.Lock()
	s.sheets = sheets
	s.mu.Unlock()
	s.logger.Info().Int("sheets", len(sheets)).Msg("Composition restored")
	return nil
}
