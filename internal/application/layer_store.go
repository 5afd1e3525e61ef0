// Package application contains the application services.
package application

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/mapcore/internal/domain"
)

// LayerStore is the ordered list of logical map layers.
// Index 0 is the bottom of the stack.
type LayerStore struct {
	mu     sync.RWMutex
	layers []*domain.MapLayer
	bus    *EventBus
	now    func() time.Time
}

// NewLayerStore creates an empty layer store.
func NewLayerStore(bus *EventBus) *LayerStore {
	return &LayerStore{
		bus: bus,
		now: time.Now,
	}
}

// Add inserts a layer on top of the stack. The name is suffixed with " (n)"
// when it collides with an existing layer. The stored layer is returned.
func (s *LayerStore) Add(layer domain.MapLayer) (domain.MapLayer, error) {
	layer.Name = strings.TrimSpace(layer.Name)
	if err := layer.Validate(); err != nil {
		return domain.MapLayer{}, err
	}

	s.mu.Lock()
	layer.Name = domain.UniqueName(layer.Name, s.hasLocked)
	if layer.ID == "" {
		layer.ID = uuid.NewString()
	}
	if layer.AddedAt.IsZero() {
		layer.AddedAt = s.now()
	}
	stored := layer
	s.layers = append(s.layers, &stored)
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceLayers, Action: "created", ID: layer.Name})
	return layer, nil
}

// Remove deletes a layer by name and returns it.
func (s *LayerStore) Remove(name string) (domain.MapLayer, error) {
	s.mu.Lock()
	i := s.indexLocked(name)
	if i < 0 {
		s.mu.Unlock()
		return domain.MapLayer{}, fmt.Errorf("%w: %s", domain.ErrLayerNotFound, name)
	}
	removed := *s.layers[i]
	s.layers = slices.Delete(s.layers, i, i+1)
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceLayers, Action: "deleted", ID: name})
	return removed, nil
}

// Update applies a visual patch to a layer.
func (s *LayerStore) Update(name string, patch domain.LayerPatch) (domain.MapLayer, error) {
	if patch.Opacity != nil && (*patch.Opacity < 0 || *patch.Opacity > 1) {
		return domain.MapLayer{}, &domain.ValidationError{
			Field:      "opacity",
			Value:      *patch.Opacity,
			Constraint: "[0, 1]",
			Message:    "opacity must be between 0 and 1",
		}
	}
	if patch.Color != nil && *patch.Color != "" {
		if err := domain.ValidateColor(*patch.Color); err != nil {
			return domain.MapLayer{}, err
		}
	}

	s.mu.Lock()
	i := s.indexLocked(name)
	if i < 0 {
		s.mu.Unlock()
		return domain.MapLayer{}, fmt.Errorf("%w: %s", domain.ErrLayerNotFound, name)
	}
	l := s.layers[i]
	if patch.Visible != nil {
		l.Visible = *patch.Visible
	}
	if patch.Opacity != nil {
		l.Opacity = *patch.Opacity
	}
	if patch.Color != nil {
		l.ColorOverride = *patch.Color
	}
	updated := *l
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceLayers, Action: "updated", ID: name})
	return updated, nil
}

// Reorder replaces the stack order. names must be a permutation of the
// current layer names, bottom first.
func (s *LayerStore) Reorder(names []string) error {
	s.mu.Lock()
	if len(names) != len(s.layers) {
		s.mu.Unlock()
		return &domain.ValidationError{
			Field:      "order",
			Value:      len(names),
			Constraint: fmt.Sprintf("%d names", len(s.layers)),
			Message:    "order must list every layer exactly once",
		}
	}

	byName := make(map[string]*domain.MapLayer, len(s.layers))
	for _, l := range s.layers {
		byName[l.Name] = l
	}
	ordered := make([]*domain.MapLayer, 0, len(names))
	for _, n := range names {
		l, ok := byName[n]
		if !ok {
			s.mu.Unlock()
			return &domain.ValidationError{
				Field:      "order",
				Value:      n,
				Constraint: "known, unique layer names",
				Message:    "order contains an unknown or repeated layer",
			}
		}
		delete(byName, n)
		ordered = append(ordered, l)
	}
	s.layers = ordered
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceLayers, Action: "reordered"})
	return nil
}

// Get returns a layer by name.
func (s *LayerStore) Get(name string) (domain.MapLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(name)
	if i < 0 {
		return domain.MapLayer{}, false
	}
	return *s.layers[i], true
}

// Has reports whether a layer name is taken.
func (s *LayerStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasLocked(name)
}

// List returns a snapshot of all layers, bottom first.
func (s *LayerStore) List() []domain.MapLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MapLayer, len(s.layers))
	for i, l := range s.layers {
		out[i] = *l
	}
	return out
}

// Names returns the layer names, bottom first.
func (s *LayerStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Name
	}
	return out
}

// TopmostVisibleRaster returns the highest visible raster layer.
func (s *LayerStore) TopmostVisibleRaster() (domain.MapLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.layers) - 1; i >= 0; i-- {
		if l := s.layers[i]; l.IsRaster() && l.Visible {
			return *l, true
		}
	}
	return domain.MapLayer{}, false
}

// Len returns the number of layers.
func (s *LayerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

func (s *LayerStore) hasLocked(name string) bool {
	return s.indexLocked(name) >= 0
}

func (s *LayerStore) indexLocked(name string) int {
	for i, l := range s.layers {
		if l.Name == name {
			return i
		}
	}
	return -1
}
