package application

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jobrunner/mapcore/internal/domain"
)

// GeometryStore holds finalized regions and drawn query features.
type GeometryStore struct {
	mu       sync.RWMutex
	regions  []*domain.RegionOfInterest
	features []*domain.DrawnQueryFeature
	lastUID  uint64
	selected uint64 // 0 when nothing is selected
	bus      *EventBus
	now      func() time.Time
}

// NewGeometryStore creates an empty geometry store.
func NewGeometryStore(bus *EventBus) *GeometryStore {
	return &GeometryStore{
		bus: bus,
		now: time.Now,
	}
}

// AddRegion stores a finalized region. Names must be unique.
func (s *GeometryStore) AddRegion(r domain.RegionOfInterest) error {
	if err := domain.ValidateArea(r.Geometry); err != nil {
		return err
	}
	if !r.Provenance.IsValid() {
		return &domain.ValidationError{
			Field:      "provenance",
			Value:      r.Provenance,
			Constraint: "drawn|imported|attached|sessionRestored",
			Message:    "unknown region provenance",
		}
	}

	s.mu.Lock()
	if s.regionIndexLocked(r.Name) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already exists", domain.ErrRegionExists, r.Name)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	stored := r
	s.regions = append(s.regions, &stored)
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceRegions, Action: "created", ID: r.Name})
	return nil
}

// RemoveRegion deletes a region by name.
func (s *GeometryStore) RemoveRegion(name string) (domain.RegionOfInterest, bool) {
	s.mu.Lock()
	i := s.regionIndexLocked(name)
	if i < 0 {
		s.mu.Unlock()
		return domain.RegionOfInterest{}, false
	}
	removed := *s.regions[i]
	s.regions = slices.Delete(s.regions, i, i+1)
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceRegions, Action: "deleted", ID: name})
	return removed, true
}

// Region returns a region by name.
func (s *GeometryStore) Region(name string) (domain.RegionOfInterest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.regionIndexLocked(name)
	if i < 0 {
		return domain.RegionOfInterest{}, false
	}
	return *s.regions[i], true
}

// HasRegion reports whether a region name is taken.
func (s *GeometryStore) HasRegion(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regionIndexLocked(name) >= 0
}

// Regions returns all regions in creation order.
func (s *GeometryStore) Regions() []domain.RegionOfInterest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RegionOfInterest, len(s.regions))
	for i, r := range s.regions {
		out[i] = *r
	}
	return out
}

// RegionsByOrigin returns the names of regions imported from origin.
func (s *GeometryStore) RegionsByOrigin(origin string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for _, r := range s.regions {
		if r.Origin == origin {
			names = append(names, r.Name)
		}
	}
	return names
}

// AddFeature assigns the next UID to a feature and stores it.
func (s *GeometryStore) AddFeature(f domain.DrawnQueryFeature) domain.DrawnQueryFeature {
	s.mu.Lock()
	s.lastUID++
	f.UID = s.lastUID
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	stored := f
	s.features = append(s.features, &stored)
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceFeatures, Action: "created", ID: f.LayerID})
	return f
}

// RemoveFeature deletes a feature by UID. A selected feature is deselected.
func (s *GeometryStore) RemoveFeature(uid uint64) (domain.DrawnQueryFeature, bool) {
	s.mu.Lock()
	i := s.featureIndexLocked(uid)
	if i < 0 {
		s.mu.Unlock()
		return domain.DrawnQueryFeature{}, false
	}
	removed := *s.features[i]
	s.features = slices.Delete(s.features, i, i+1)
	if s.selected == uid {
		s.selected = 0
	}
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceFeatures, Action: "deleted", ID: removed.LayerID})
	return removed, true
}

// RemoveFeaturesBySource deletes all features queried against a layer.
func (s *GeometryStore) RemoveFeaturesBySource(layerName string) []domain.DrawnQueryFeature {
	s.mu.Lock()
	var removed []domain.DrawnQueryFeature
	kept := s.features[:0]
	for _, f := range s.features {
		if f.SourceLayerName == layerName {
			removed = append(removed, *f)
			if s.selected == f.UID {
				s.selected = 0
			}
			continue
		}
		kept = append(kept, f)
	}
	clear(s.features[len(kept):])
	s.features = kept
	s.mu.Unlock()

	if len(removed) > 0 {
		s.bus.Publish(Event{Resource: ResourceFeatures, Action: "deleted", ID: layerName})
	}
	return removed
}

// Feature returns a feature by UID.
func (s *GeometryStore) Feature(uid uint64) (domain.DrawnQueryFeature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.featureIndexLocked(uid)
	if i < 0 {
		return domain.DrawnQueryFeature{}, false
	}
	return *s.features[i], true
}

// Features returns all features in UID order.
func (s *GeometryStore) Features() []domain.DrawnQueryFeature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DrawnQueryFeature, len(s.features))
	for i, f := range s.features {
		out[i] = *f
	}
	return out
}

// Select marks a feature as the open query geometry and returns the
// previously selected UID (0 if none).
func (s *GeometryStore) Select(uid uint64) (uint64, error) {
	s.mu.Lock()
	if s.featureIndexLocked(uid) < 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", domain.ErrFeatureNotFound, uid)
	}
	prev := s.selected
	s.selected = uid
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: ResourceFeatures, Action: "selected"})
	return prev, nil
}

// Selected returns the selected feature.
func (s *GeometryStore) Selected() (domain.DrawnQueryFeature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == 0 {
		return domain.DrawnQueryFeature{}, false
	}
	i := s.featureIndexLocked(s.selected)
	if i < 0 {
		return domain.DrawnQueryFeature{}, false
	}
	return *s.features[i], true
}

// Counts returns the number of regions and features.
func (s *GeometryStore) Counts() (regions, features int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.regions), len(s.features)
}

func (s *GeometryStore) regionIndexLocked(name string) int {
	for i, r := range s.regions {
		if r.Name == name {
			return i
		}
	}
	return -1
}

func (s *GeometryStore) featureIndexLocked(uid uint64) int {
	for i, f := range s.features {
		if f.UID == uid {
			return i
		}
	}
	return -1
}
