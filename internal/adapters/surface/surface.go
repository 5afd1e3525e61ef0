package surface

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// Surface implements output.MapSurface. Layer IDs are kept bottom first.
type Surface struct {
	mu      sync.RWMutex
	sources map[string]output.SourceSpec
	specs   map[string]output.LayerSpec
	order   []string
	cursor  domain.Cursor
	journal *Journal
}

// Snapshot is the full state of a surface at one journal position.
type Snapshot struct {
	Seq     uint64              `json:"seq"`
	Sources []output.SourceSpec `json:"sources"`
	Layers  []output.LayerSpec  `json:"layers"`
	Cursor  domain.Cursor       `json:"cursor"`
}

// New creates an empty surface journaling into j.
func New(j *Journal) *Surface {
	if j == nil {
		j = NewJournal(DefaultCapacity)
	}
	return &Surface{
		sources: make(map[string]output.SourceSpec),
		specs:   make(map[string]output.LayerSpec),
		cursor:  domain.CursorDefault,
		journal: j,
	}
}

// Journal returns the operation journal.
func (s *Surface) Journal() *Journal {
	return s.journal
}

// AddSource implements output.MapSurface.
func (s *Surface) AddSource(spec output.SourceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[spec.ID]; ok {
		return fmt.Errorf("source %s: %w", spec.ID, domain.ErrConflict)
	}
	s.sources[spec.ID] = spec
	s.journal.Append(Op{Kind: OpAddSource, ID: spec.ID, Source: &spec})
	return nil
}

// RemoveSource implements output.MapSurface.
func (s *Surface) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
	}
	for _, l := range s.specs {
		if l.Source == id {
			return fmt.Errorf("source %s is used by layer %s: %w", id, l.ID, domain.ErrConflict)
		}
	}
	delete(s.sources, id)
	s.journal.Append(Op{Kind: OpRemoveSource, ID: id})
	return nil
}

// HasSource implements output.MapSurface.
func (s *Surface) HasSource(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[id]
	return ok
}

// AddLayer implements output.MapSurface.
func (s *Surface) AddLayer(spec output.LayerSpec, beforeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.specs[spec.ID]; ok {
		return fmt.Errorf("layer %s: %w", spec.ID, domain.ErrConflict)
	}
	spec.Paint = cloneProps(spec.Paint)
	spec.Layout = cloneProps(spec.Layout)
	s.specs[spec.ID] = spec
	s.order = insertBefore(s.order, spec.ID, beforeID)
	s.journal.Append(Op{Kind: OpAddLayer, ID: spec.ID, Before: beforeID, Layer: &spec})
	return nil
}

// RemoveLayer implements output.MapSurface.
func (s *Surface) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.order, id)
	if i < 0 {
		return fmt.Errorf("layer %s: %w", id, domain.ErrNotFound)
	}
	s.order = slices.Delete(s.order, i, i+1)
	delete(s.specs, id)
	s.journal.Append(Op{Kind: OpRemoveLayer, ID: id})
	return nil
}

// HasLayer implements output.MapSurface.
func (s *Surface) HasLayer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.specs[id]
	return ok
}

// SetPaintProperty implements output.MapSurface.
func (s *Surface) SetPaintProperty(layerID, name string, value any) error {
	return s.setProperty(OpSetPaintProperty, layerID, name, value)
}

// SetLayoutProperty implements output.MapSurface.
func (s *Surface) SetLayoutProperty(layerID, name string, value any) error {
	return s.setProperty(OpSetLayoutProperty, layerID, name, value)
}

func (s *Surface) setProperty(kind, layerID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[layerID]
	if !ok {
		return fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}
	props := &spec.Paint
	if kind == OpSetLayoutProperty {
		props = &spec.Layout
	}
	if *props == nil {
		*props = make(map[string]any)
	}
	if old, ok := (*props)[name]; ok && reflect.DeepEqual(old, value) {
		return nil
	}
	(*props)[name] = value
	s.specs[layerID] = spec
	s.journal.Append(Op{Kind: kind, ID: layerID, Property: name, Value: value})
	return nil
}

// MoveLayer implements output.MapSurface.
func (s *Surface) MoveLayer(id, beforeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.order, id)
	if i < 0 {
		return fmt.Errorf("layer %s: %w", id, domain.ErrNotFound)
	}
	if beforeID != "" && slices.Index(s.order, beforeID) < 0 {
		return fmt.Errorf("layer %s: %w", beforeID, domain.ErrNotFound)
	}
	s.order = slices.Delete(s.order, i, i+1)
	s.order = insertBefore(s.order, id, beforeID)
	s.journal.Append(Op{Kind: OpMoveLayer, ID: id, Before: beforeID})
	return nil
}

// LayerIDs implements output.MapSurface.
func (s *Surface) LayerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// SetCursor implements output.MapSurface.
func (s *Surface) SetCursor(c domain.Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == c {
		return
	}
	s.cursor = c
	s.journal.Append(Op{Kind: OpSetCursor, Cursor: c})
}

// Layer returns the current spec of a layer.
func (s *Surface) Layer(id string) (output.LayerSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[id]
	if !ok {
		return output.LayerSpec{}, false
	}
	spec.Paint = cloneProps(spec.Paint)
	spec.Layout = cloneProps(spec.Layout)
	return spec, true
}

// Snapshot returns the current state. Replaying the journal after
// Snapshot.Seq on top of it yields the live surface.
func (s *Surface) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Seq:     s.journal.Last(),
		Sources: make([]output.SourceSpec, 0, len(s.sources)),
		Layers:  make([]output.LayerSpec, 0, len(s.order)),
		Cursor:  s.cursor,
	}
	for _, id := range slices.Sorted(maps.Keys(s.sources)) {
		snap.Sources = append(snap.Sources, s.sources[id])
	}
	for _, id := range s.order {
		spec := s.specs[id]
		spec.Paint = cloneProps(spec.Paint)
		spec.Layout = cloneProps(spec.Layout)
		snap.Layers = append(snap.Layers, spec)
	}
	return snap
}

func insertBefore(order []string, id, before string) []string {
	if before != "" {
		if at := slices.Index(order, before); at >= 0 {
			return slices.Insert(order, at, id)
		}
	}
	return append(order, id)
}

func cloneProps(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
