// Package crossfilter holds the transient highlight selection created by
// clicking a data point inside a visual. It sits beside the filter store and
// never removes rows: it only marks rows for highlight/dim during rendering.
// Collapsing the two mechanisms is a design error; keep them independent.
package crossfilter

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Selection is the single active cross-filter: which visual it originated
// from, the dimension that was clicked, and the clicked value.
type Selection struct {
	SourceVisualID string `json:"sourceVisualId"`
	Dimension      string `json:"dimension"`
	Value          any    `json:"value"`
}

// equal compares selections structurally; values are deep-compared so slice
// values from multi-select clicks toggle correctly.
func (s Selection) equal(o Selection) bool {
	return s.SourceVisualID == o.SourceVisualID &&
		s.Dimension == o.Dimension &&
		reflect.DeepEqual(s.Value, o.Value)
}

// Coordinator owns at most one Selection across the whole sheet.
type Coordinator struct {
	mu     sync.RWMutex
	active *Selection
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator with no active selection.
func NewCoordinator(logger zerolog.Logger) *Coordinator {
	return &Coordinator{logger: logger.With().Str("component", "crossfilter").Logger()}
}

// Set installs a selection. Setting a selection structurally equal to the
// current one toggles it off instead — clicking the same bar twice clears the
// highlight. Returns true when a selection is active afterwards.
func (c *Coordinator) Set(next Selection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.equal(next) {
		c.active = nil
		c.logger.Debug().Str("dimension", next.Dimension).Msg("Cross-filter toggled off")
		return false
	}
	c.active = &next
	c.logger.Debug().
		Str("source_visual", next.SourceVisualID).
		Str("dimension", next.Dimension).
		Msg("Cross-filter set")
	return true
}

// Clear drops the active selection.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// ClearIfSource drops the selection when the given visual originated it,
// used when a visual is deleted.
func (c *Coordinator) ClearIfSource(visualID string) {
	c.mu.Lock()
	if c.active != nil && c.active.SourceVisualID == visualID {
		c.active = nil
	}
	c.mu.Unlock()
}

// Active returns a copy of the current selection, or nil.
func (c *Coordinator) Active() *Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return nil
	}
	sel := *c.active
	return &sel
}

// IsFiltered reports whether the given visual should render dimmed: true iff
// a selection is active and this visual is not its origin.
func (c *Coordinator) IsFiltered(visualID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active != nil && c.active.SourceVisualID != visualID
}

// Highlight returns the active selection's value when its dimension matches,
// so a visual can decide per-data-point opacity.
func (c *Coordinator) Highlight(dimension string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil || c.active.Dimension != dimension {
		return nil, false
	}
	return c.active.Value, true
}
