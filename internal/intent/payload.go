// Package intent turns drag-and-drop gestures into composition mutations.
// Drag identifiers arrive namespaced by prefix; they are decoded exactly once
// here, at the boundary, into tagged source/target types so the router
// dispatches on enums instead of string prefixes.
package intent

import (
	"strings"

	"github.com/plotform-labs/plotform/internal/composition"
	"github.com/plotform-labs/plotform/internal/pipeline"
)

// Delta is the pointer movement between drag start and drop.
type Delta struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DragEvent is the wire contract the router consumes, produced by the
// external drag library.
type DragEvent struct {
	SourceID      string         `json:"sourceId"`
	SourcePayload map[string]any `json:"sourcePayload"`
	TargetID      *string        `json:"targetId"`
	TargetPayload map[string]any `json:"targetPayload"`
	Delta         Delta          `json:"delta"`
}

// SourceKind tags where a drag originated.
type SourceKind string

const (
	SourceLayout     SourceKind = "layout"     // layout template palette
	SourceChartType  SourceKind = "chart"      // component-type palette
	SourceSlicerType SourceKind = "slicer"     // slicer-type palette
	SourceDataField  SourceKind = "data-field" // data field list
	SourceComponent  SourceKind = "component"  // placed component being moved
	SourceUnknown    SourceKind = "unknown"
)

// Source is the decoded drag origin.
type Source struct {
	Kind       SourceKind
	Layout     composition.LayoutTemplate // SourceLayout
	ChartType  composition.ChartType      // SourceChartType
	SlicerType composition.SlicerType     // SourceSlicerType
	FieldID    string                     // SourceDataField
	ComponentID string                    // SourceComponent
}

// TargetKind tags where a drag landed.
type TargetKind string

const (
	TargetCanvas  TargetKind = "canvas"
	TargetSlot    TargetKind = "slot"
	TargetWell    TargetKind = "well"
	TargetVisual  TargetKind = "visual"
	TargetNone    TargetKind = "none" // released outside any drop zone
	TargetUnknown TargetKind = "unknown"
)

// Target is the decoded drop location.
type Target struct {
	Kind     TargetKind
	PanelID  string            // TargetSlot
	SlotID   string            // TargetSlot
	Well     pipeline.WellKind // TargetWell
	VisualID string            // TargetVisual
}

// DecodeSource classifies a drag source id. Id namespaces:
//
//	layout-<template>   layout template palette entry
//	chart-<type>        component-type palette entry
//	slicer-<type>       slicer-type palette entry
//	field-<fieldId>     data field list entry
//	component-<id>      an already-placed panel/visual/slicer
func DecodeSource(id string, payload map[string]any) Source {
	switch {
	case strings.HasPrefix(id, "layout-"):
		return Source{Kind: SourceLayout, Layout: composition.LayoutTemplate(strings.TrimPrefix(id, "layout-"))}
	case strings.HasPrefix(id, "chart-"):
		return Source{Kind: SourceChartType, ChartType: composition.ChartType(strings.TrimPrefix(id, "chart-"))}
	case strings.HasPrefix(id, "slicer-"):
		return Source{Kind: SourceSlicerType, SlicerType: composition.SlicerType(strings.TrimPrefix(id, "slicer-"))}
	case strings.HasPrefix(id, "field-"):
		return Source{Kind: SourceDataField, FieldID: strings.TrimPrefix(id, "field-")}
	case strings.HasPrefix(id, "component-"):
		return Source{Kind: SourceComponent, ComponentID: strings.TrimPrefix(id, "component-")}
	default:
		return Source{Kind: SourceUnknown}
	}
}

// DecodeTarget classifies a drop target id. A nil id means the drag was
// released outside every drop zone (an aborted drag). Target namespaces:
//
//	canvas              the sheet canvas
//	slot-<slotId>       a panel slot; the panel id rides in the payload
//	well-<kind>         a field well of the selected visual
//	visual-<id>         an existing visual's drop zone
func DecodeTarget(id *string, payload map[string]any) Target {
	if id == nil || *id == "" {
		return Target{Kind: TargetNone}
	}
	t := *id
	switch {
	case t == "canvas":
		return Target{Kind: TargetCanvas}
	case strings.HasPrefix(t, "slot-"):
		panelID, _ := payload["panelId"].(string)
		return Target{Kind: TargetSlot, SlotID: strings.TrimPrefix(t, "slot-"), PanelID: panelID}
	case strings.HasPrefix(t, "well-"):
		kind, ok := pipeline.ParseWellKind(strings.TrimPrefix(t, "well-"))
		if !ok {
			return Target{Kind: TargetUnknown}
		}
		return Target{Kind: TargetWell, Well: kind}
	case strings.HasPrefix(t, "visual-"):
		return Target{Kind: TargetVisual, VisualID: strings.TrimPrefix(t, "visual-")}
	default:
		return Target{Kind: TargetUnknown}
	}
}
