package intent

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/composition"
	"github.com/plotform-labs/plotform/internal/dataset"
	"github.com/plotform-labs/plotform/internal/filter"
	"github.com/plotform-labs/plotform/internal/pipeline"
)

// ActionKind names the mutation a resolved intent applied.
type ActionKind string

const (
	ActionCreatePanel  ActionKind = "create-panel"
	ActionCreateVisual ActionKind = "create-visual"
	ActionBindVisual   ActionKind = "bind-visual"
	ActionCreateSlicer ActionKind = "create-slicer"
	ActionAttachField  ActionKind = "attach-field"
	ActionQuickBind    ActionKind = "quick-bind"
	ActionMove         ActionKind = "move"
)

// Action describes the mutation a resolved drop applied, for the caller to
// surface and for the client to reconcile.
type Action struct {
	Kind        ActionKind          `json:"kind"`
	PanelID     string              `json:"panelId,omitempty"`
	VisualID    string              `json:"visualId,omitempty"`
	SlicerID    string              `json:"slicerId,omitempty"`
	SlotID      string              `json:"slotId,omitempty"`
	FieldID     string              `json:"fieldId,omitempty"`
	Well        pipeline.WellKind   `json:"well,omitempty"`
	Rows        []pipeline.ChartRow `json:"rows,omitempty"`
}

// Rejection reports an unresolved drop. It is not an error in the Go sense
// worth a 500: the drop simply had no effect on composition state and the
// caller surfaces a non-blocking notice.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func reject(format string, args ...any) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// RecordProvider supplies the current record set for rederivation.
type RecordProvider interface {
	Records() []dataset.Record
}

// Router classifies drag-and-drop events and applies the resulting mutation.
// Its resolved actions are the only writers of composition state on the drag
// path; an unresolved drop mutates nothing.
type Router struct {
	state   *composition.State
	catalog *dataset.Catalog
	records RecordProvider
	filters *filter.Store
	logger  zerolog.Logger
}

// NewRouter wires the router to its collaborators.
func NewRouter(state *composition.State, catalog *dataset.Catalog, records RecordProvider, filters *filter.Store, logger zerolog.Logger) *Router {
	return &Router{
		state:   state,
		catalog: catalog,
		records: records,
		filters: filters,
		logger:  logger.With().Str("component", "intent-router").Logger(),
	}
}

// Resolve classifies a drag event and applies the resulting mutation to the
// given sheet. Classification is source-kind-major, then target: the same
// target accepts different source namespaces with different actions.
// A *Rejection error means the drop was refused without touching state.
func (r *Router) Resolve(sheetID string, ev DragEvent) (*Action, error) {
	src := DecodeSource(ev.SourceID, ev.SourcePayload)
	tgt := DecodeTarget(ev.TargetID, ev.TargetPayload)
	pos := composition.Position{X: ev.Delta.X, Y: ev.Delta.Y}

	var act *Action
	var err error
	switch src.Kind {
	case SourceLayout:
		act, err = r.resolveLayout(sheetID, src, tgt, pos)
	case SourceChartType:
		act, err = r.resolveChartType(sheetID, src, tgt, pos)
	case SourceSlicerType:
		act, err = r.resolveSlicerType(sheetID, src, tgt, pos)
	case SourceDataField:
		act, err = r.resolveDataField(sheetID, src, tgt)
	case SourceComponent:
		act, err = r.resolveMove(sheetID, src, tgt, ev.Delta)
	default:
		err = reject("unrecognized drag source %q", ev.SourceID)
	}

	if err != nil {
		if rej, ok := err.(*Rejection); ok {
			r.logger.Debug().
				Str("source", ev.SourceID).
				Str("reason", rej.Reason).
				Msg("Drop rejected")
		}
		return nil, err
	}
	r.logger.Debug().
		Str("source", ev.SourceID).
		Str("action", string(act.Kind)).
		Msg("Intent resolved")
	return act, nil
}

func (r *Router) resolveLayout(sheetID string, src Source, tgt Target, pos composition.Position) (*Action, error) {
	if tgt.Kind != TargetCanvas {
		return nil, reject("layout templates can only be dropped on the canvas")
	}
	p, err := r.state.AddPanel(sheetID, src.Layout, pos)
	if err != nil {
		return nil, err
	}
	return &Action{Kind: ActionCreatePanel, PanelID: p.ID}, nil
}

func (r *Router) resolveChartType(sheetID string, src Source, tgt Target, pos composition.Position) (*Action, error) {
	switch tgt.Kind {
	case TargetCanvas:
		v, err := r.state.AddVisual(sheetID, src.ChartType, pos)
		if err != nil {
			return nil, err
		}
		return &Action{Kind: ActionCreateVisual, VisualID: v.ID}, nil
	case TargetSlot:
		v, err := r.state.AddVisualToSlot(sheetID, tgt.PanelID, tgt.SlotID, src.ChartType)
		if err != nil {
			return nil, err
		}
		return &Action{Kind: ActionBindVisual, VisualID: v.ID, PanelID: tgt.PanelID, SlotID: tgt.SlotID}, nil
	default:
		return nil, reject("chart types drop on the canvas or a panel slot")
	}
}

func (r *Router) resolveSlicerType(sheetID string, src Source, tgt Target, pos composition.Position) (*Action, error) {
	// Slicers land anywhere that is not a structural drop zone; an aborted
	// drag lands nowhere and must not mutate.
	switch tgt.Kind {
	case TargetNone:
		return nil, reject("drag released outside every drop zone")
	case TargetSlot, TargetWell, TargetVisual:
		return nil, reject("slicers cannot be dropped on slots, wells or visuals")
	}
	field, ok := r.catalog.NaturalCategory()
	if !ok {
		return nil, reject("no dimension field available for a default slicer binding")
	}
	sl, err := r.state.AddSlicer(sheetID, src.SlicerType, field.ID, pos)
	if err != nil {
		return nil, err
	}
	return &Action{Kind: ActionCreateSlicer, SlicerID: sl.ID, FieldID: field.ID}, nil
}

func (r *Router) resolveDataField(sheetID string, src Source, tgt Target) (*Action, error) {
	field, ok := r.catalog.Lookup(src.FieldID)
	if !ok {
		return nil, reject("unknown data field %q", src.FieldID)
	}

	switch tgt.Kind {
	case TargetWell:
		visualID := r.state.SelectedVisualID(sheetID)
		if visualID == "" {
			return nil, reject("select a visual before dropping fields into its wells")
		}
		return r.attachField(sheetID, visualID, tgt.Well, field)

	case TargetVisual:
		return r.quickBind(sheetID, tgt.VisualID, field)

	case TargetSlot:
		// The legacy single-field path: dropping a field on a slot that
		// already shows a visual rebinds that visual's whole dataset.
		visualID, bound := r.state.SlotVisualID(sheetID, tgt.PanelID, tgt.SlotID)
		if !bound {
			return nil, reject("slot has no visual to bind the field to")
		}
		return r.quickBind(sheetID, visualID, field)

	default:
		return nil, reject("data fields drop on field wells or visuals")
	}
}

// attachField appends the field to the well (legend replaces) and re-runs
// the aggregation pipeline for the visual.
func (r *Router) attachField(sheetID, visualID string, well pipeline.WellKind, field dataset.DataField) (*Action, error) {
	filtered := r.filters.Apply(r.records.Records())
	v, err := r.state.UpdateVisual(sheetID, visualID, func(v *composition.Visual) {
		v.Mapping.Attach(well, field)
		if rows := pipeline.DeriveRows(filtered, v.Mapping); rows != nil {
			v.Rows = rows
		}
		if title := v.Mapping.Title(); title != "" {
			v.Title = title
		}
	})
	if err != nil {
		return nil, err
	}
	return &Action{
		Kind:     ActionAttachField,
		VisualID: visualID,
		FieldID:  field.ID,
		Well:     well,
		Rows:     v.Rows,
	}, nil
}

// quickBind replaces the visual's entire mapping: the dropped field becomes
// the sole value, aggregated against the catalog's natural category axis.
func (r *Router) quickBind(sheetID, visualID string, field dataset.DataField) (*Action, error) {
	axis, ok := r.catalog.NaturalCategory()
	if !ok {
		return nil, reject("no category field available for quick binding")
	}
	if field.Role != dataset.RoleMetric {
		return nil, reject("quick binding needs a metric field, %q is a dimension", field.ID)
	}
	filtered := r.filters.Apply(r.records.Records())
	v, err := r.state.UpdateVisual(sheetID, visualID, func(v *composition.Visual) {
		m := pipeline.NewMapping()
		m.Attach(pipeline.WellAxis, axis)
		m.Attach(pipeline.WellValues, field)
		v.Mapping = m
		if rows := pipeline.DeriveRows(filtered, v.Mapping); rows != nil {
			v.Rows = rows
		}
		if title := v.Mapping.Title(); title != "" {
			v.Title = title
		}
	})
	if err != nil {
		return nil, err
	}
	return &Action{Kind: ActionQuickBind, VisualID: visualID, FieldID: field.ID, Rows: v.Rows}, nil
}

func (r *Router) resolveMove(sheetID string, src Source, tgt Target, d Delta) (*Action, error) {
	// Pure repositioning; any drop zone works, but an aborted drag snaps the
	// component back to where it was.
	if tgt.Kind == TargetNone {
		return nil, reject("drag released outside every drop zone")
	}
	if err := r.state.MoveComponent(sheetID, src.ComponentID, d.X, d.Y); err != nil {
		return nil, err
	}
	return &Action{Kind: ActionMove, VisualID: src.ComponentID}, nil
}
