package filter

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/dataset"
)

// Store owns the ordered set of active filters, one per field. It is the
// single source of truth for filtering: slicer widgets render a view over
// "this field's current selection" and never hold predicate state of their
// own.
type Store struct {
	mu      sync.RWMutex
	filters []Value
	onClear func() // resets slicer selections; set once at wiring time
	logger  zerolog.Logger
}

// NewStore creates an empty filter store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{logger: logger.With().Str("component", "filter-store").Logger()}
}

// SetClearHook registers the callback invoked by ClearAll so slicer widget
// state stays consistent with the emptied store.
func (s *Store) SetClearHook(fn func()) {
	s.mu.Lock()
	s.onClear = fn
	s.mu.Unlock()
}

// AddOrReplace installs a filter. An existing filter for the same field is
// replaced in place, preserving its position; filter order stays stable for
// deterministic iteration.
func (s *Store) AddOrReplace(v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.filters {
		if s.filters[i].Field == v.Field {
			s.filters[i] = v
			s.logger.Debug().Str("field", v.Field).Str("operator", string(v.Operator)).Msg("Filter replaced")
			return
		}
	}
	s.filters = append(s.filters, v)
	s.logger.Debug().Str("field", v.Field).Str("operator", string(v.Operator)).Msg("Filter added")
}

// Remove drops the filter for a field. Removing an absent field is a no-op.
func (s *Store) Remove(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.filters {
		if s.filters[i].Field == field {
			s.filters = append(s.filters[:i], s.filters[i+1:]...)
			s.logger.Debug().Str("field", field).Msg("Filter removed")
			return
		}
	}
}

// Get returns the filter for a field, if any.
func (s *Store) Get(field string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.filters {
		if f.Field == field {
			return f, true
		}
	}
	return Value{}, false
}

// List returns a snapshot of the active filters in order.
func (s *Store) List() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Value, len(s.filters))
	copy(out, s.filters)
	return out
}

// Len returns the number of active filters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filters)
}

// Apply returns the records passing every active filter (AND across fields).
// With no filters it returns the input slice unchanged — the common no-filter
// path allocates nothing.
func (s *Store) Apply(records []dataset.Record) []dataset.Record {
	s.mu.RLock()
	filters := s.filters
	if len(filters) == 0 {
		s.mu.RUnlock()
		return records
	}
	snapshot := make([]Value, len(filters))
	copy(snapshot, filters)
	s.mu.RUnlock()

	out := make([]dataset.Record, 0, len(records))
	for _, rec := range records {
		pass := true
		for _, f := range snapshot {
			if !Evaluate(f, rec) {
				pass = false
				break
			}
		}
		if pass {
			out = append(out, rec)
		}
	}
	return out
}

// ClearAll empties the store and resets every registered slicer's selection
// through the clear hook, keeping widget state and predicate state in sync.
func (s *Store) ClearAll() {
	s.mu.Lock()
	n := len(s.filters)
	s.filters = nil
	hook := s.onClear
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	s.logger.Info().Int("cleared", n).Msg("All filters cleared")
}
