package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/input"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// SessionDeps bundles the collaborators of a Session.
type SessionDeps struct {
	Surface   output.MapSurface
	Toolkit   output.DrawingToolkit
	Camera    output.Camera
	Extractor output.Extractor
	Geocoder  output.Geocoder // optional
	Metrics   output.MetricsCollector
	Bus       *EventBus
	Logger    *slog.Logger
	Zoom      ZoomConfig
	CacheSize int
}

// Session is a single map view. One mutex serializes every gesture and
// store mutation; only the extraction call runs with it released.
type Session struct {
	mu sync.Mutex

	layers  *LayerStore
	geoms   *GeometryStore
	charts  *ChartSlot
	caches  *Caches
	modes   *ModeController
	roi     *ROIHandler
	query   *QueryHandler
	sync    *SyncEngine
	zoom    *ZoomCoordinator
	bus     *EventBus
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewSession wires the stores and handlers of a map view.
func NewSession(d SessionDeps) (*Session, error) {
	if d.Metrics == nil {
		d.Metrics = &output.NoOpMetrics{}
	}
	if d.Bus == nil {
		d.Bus = NewEventBus()
	}
	caches, err := NewCaches(d.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating caches: %w", err)
	}

	s := &Session{
		layers:  NewLayerStore(d.Bus),
		geoms:   NewGeometryStore(d.Bus),
		charts:  NewChartSlot(d.Bus),
		caches:  caches,
		bus:     d.Bus,
		metrics: d.Metrics,
		logger:  d.Logger,
	}
	s.modes = NewModeController(d.Toolkit, d.Surface, d.Bus, d.Logger)
	s.roi = NewROIHandler(s.layers, s.geoms, s.modes, d.Bus, d.Logger)
	s.sync = NewSyncEngine(d.Surface, d.Toolkit, caches, d.Metrics, d.Logger)
	s.query = NewQueryHandler(QueryHandlerDeps{
		Locker:    &s.mu,
		Layers:    s.layers,
		Geoms:     s.geoms,
		Charts:    s.charts,
		Modes:     s.modes,
		Caches:    caches,
		Selector:  s.sync,
		Extractor: d.Extractor,
		Metrics:   d.Metrics,
		Bus:       d.Bus,
		Logger:    d.Logger,
	})
	s.zoom = NewZoomCoordinator(s.layers, s.geoms, d.Geocoder, d.Camera, d.Zoom, d.Bus, d.Logger)
	return s, nil
}

// Bus returns the session's event bus.
func (s *Session) Bus() *EventBus {
	return s.bus
}

// AddRasterLayer adds an analysis raster on top of the stack.
func (s *Session) AddRasterLayer(req input.AddRasterRequest) (domain.MapLayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.RegionName != "" && !s.geoms.HasRegion(req.RegionName) {
		return domain.MapLayer{}, fmt.Errorf("%w: %s", domain.ErrRegionNotFound, req.RegionName)
	}
	opacity := domain.DefaultOpacity
	if req.Opacity != nil {
		opacity = *req.Opacity
	}

	layer, err := s.layers.Add(domain.MapLayer{
		Name:                 req.Name,
		Kind:                 domain.LayerKindRaster,
		Visible:              true,
		Opacity:              opacity,
		FunctionType:         req.FunctionType,
		Statistics:           req.Statistics,
		AssociatedRegionName: req.RegionName,
		Analysis: domain.Analysis{
			TileURL:           req.TileURL,
			AggregationMethod: req.AggregationMethod,
			DateRanges:        req.DateRanges,
		},
	})
	if err != nil {
		return domain.MapLayer{}, err
	}
	if req.Statistics != nil {
		s.caches.Statistics.Add(layer.Name, *req.Statistics)
	}
	if req.TemporaryAssetRef != "" {
		s.caches.Assets.Add(layer.Name, req.TemporaryAssetRef)
	}

	s.reconcileLocked()
	return layer, nil
}

// RemoveLayer removes a layer and cascades: a region layer drops its region,
// a raster layer drops the features queried against it.
func (s *Session) RemoveLayer(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.removeLayerLocked(name); err != nil {
		return err
	}
	s.reconcileLocked()
	return nil
}

func (s *Session) removeLayerLocked(name string) error {
	layer, err := s.layers.Remove(name)
	if err != nil {
		return err
	}
	switch {
	case layer.IsRegion():
		s.geoms.RemoveRegion(layer.AssociatedRegionName)
	case layer.IsRaster():
		if n := s.query.RemoveBySource(layer.Name); n > 0 {
			s.logger.Debug("removed features of layer", "layer", layer.Name, "count", n)
		}
	}
	s.logger.Info("layer removed", "name", name, "kind", layer.Kind)
	return nil
}

// UpdateLayer changes visibility, opacity or color of a layer.
func (s *Session) UpdateLayer(name string, patch domain.LayerPatch) (domain.MapLayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.IsEmpty() {
		l, ok := s.layers.Get(name)
		if !ok {
			return domain.MapLayer{}, fmt.Errorf("%w: %s", domain.ErrLayerNotFound, name)
		}
		return l, nil
	}
	l, err := s.layers.Update(name, patch)
	if err != nil {
		return domain.MapLayer{}, err
	}
	s.reconcileLocked()
	return l, nil
}

// ReorderLayers sets the stack order, bottom first.
func (s *Session) ReorderLayers(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.layers.Reorder(names); err != nil {
		return err
	}
	s.reconcileLocked()
	return nil
}

// Layers returns the layer stack, bottom first.
func (s *Session) Layers() []domain.MapLayer {
	return s.layers.List()
}

// Layer returns a layer by name.
func (s *Session) Layer(name string) (domain.MapLayer, bool) {
	return s.layers.Get(name)
}

// Statistics returns the legend statistics of a raster layer.
func (s *Session) Statistics(name string) (domain.Statistics, bool) {
	if st, ok := s.caches.Statistics.Get(name); ok {
		return st, true
	}
	l, ok := s.layers.Get(name)
	if !ok || l.Statistics == nil {
		return domain.Statistics{}, false
	}
	return *l.Statistics, true
}

// SetMode switches the drawing mode from the toolbar.
func (s *Session) SetMode(mode domain.DrawingMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modes.SetMode(mode)
	s.reconcileLocked()
}

// ModeChangedExternally mirrors a toolkit-initiated mode change.
func (s *Session) ModeChangedExternally(mode domain.DrawingMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes.ModeChangedExternally(mode)
}

// OpenRegionDrawing enters the region-drawing context.
func (s *Session) OpenRegionDrawing() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roi.Open()
	s.reconcileLocked()
}

// DrawComplete routes a completed sketch to the handler of the current
// interaction context.
func (s *Session) DrawComplete(ctx context.Context, g orb.Geometry) (input.DrawOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawCompleteLocked(ctx, g)
}

func (s *Session) drawCompleteLocked(ctx context.Context, g orb.Geometry) (input.DrawOutcome, error) {
	defer s.reconcileLocked()

	switch s.modes.Context().(type) {
	case domain.RegionDrawing:
		draft, err := s.roi.Draw(g)
		if err != nil {
			return input.DrawOutcome{}, err
		}
		return input.DrawOutcome{Draft: &draft}, nil
	case domain.Querying:
		f, err := s.query.Execute(ctx, g)
		if err != nil {
			return input.DrawOutcome{}, err
		}
		return input.DrawOutcome{Feature: f, Discarded: f == nil}, nil
	}
	return input.DrawOutcome{}, domain.ErrWrongContext
}

// Click handles a map click. In draw-point mode while querying it is a
// point query; otherwise it is ignored. The mode check and the dispatch
// share one lock acquisition.
func (s *Session) Click(ctx context.Context, p orb.Point) (input.DrawOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, querying := s.modes.Context().(domain.Querying)
	if !querying || s.modes.Mode() != domain.ModeDrawPoint {
		return input.DrawOutcome{Discarded: true}, nil
	}
	return s.drawCompleteLocked(ctx, p)
}

// FinalizeRegion names the drafted region.
func (s *Session) FinalizeRegion(name string) (domain.RegionOfInterest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roi.Finalize(name)
	if err != nil {
		return domain.RegionOfInterest{}, err
	}
	s.reconcileLocked()
	return r, nil
}

// CancelRegion is the Escape key during region drafting.
func (s *Session) CancelRegion() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roi.Cancel()
	s.reconcileLocked()
}

// CloseRegionPanel discards any draft and leaves region drawing.
func (s *Session) CloseRegionPanel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roi.Close()
	s.reconcileLocked()
}

// ImportRegions finalizes externally supplied regions.
func (s *Session) ImportRegions(candidates []domain.RegionCandidate, provenance domain.Provenance) ([]domain.RegionOfInterest, error) {
	if !provenance.IsValid() || provenance == domain.ProvenanceDrawn {
		return nil, &domain.ValidationError{
			Field:      "provenance",
			Value:      provenance,
			Constraint: "imported|attached|sessionRestored",
			Message:    "imported regions need a non-interactive provenance",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.roi.Import(candidates, provenance)
	if len(created) > 0 {
		s.reconcileLocked()
	}
	return created, err
}

// RemoveRegionsByOrigin removes every region imported from origin along
// with its layer.
func (s *Session) RemoveRegionsByOrigin(origin string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, name := range s.geoms.RegionsByOrigin(origin) {
		if err := s.removeLayerLocked(name); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("failed to remove region layer", "name", name, "error", err)
			}
			s.geoms.RemoveRegion(name)
		}
		removed++
	}
	if removed > 0 {
		s.reconcileLocked()
	}
	return removed
}

// Regions returns all finalized regions.
func (s *Session) Regions() []domain.RegionOfInterest {
	return s.geoms.Regions()
}

// Region returns a region by name.
func (s *Session) Region(name string) (domain.RegionOfInterest, bool) {
	return s.geoms.Region(name)
}

// Features returns all drawn query features.
func (s *Session) Features() []domain.DrawnQueryFeature {
	return s.geoms.Features()
}

// SelectFeature opens a drawn feature for charting.
func (s *Session) SelectFeature(uid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.query.Select(uid); err != nil {
		return err
	}
	s.reconcileLocked()
	return nil
}

// RemoveFeature deletes a drawn feature.
func (s *Session) RemoveFeature(uid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.query.Remove(uid); err != nil {
		return err
	}
	s.reconcileLocked()
	return nil
}

// Charts returns the chart-ready payloads.
func (s *Session) Charts() []domain.ChartPayload {
	return s.charts.All()
}

// Chart returns the chart-ready payload of a function type.
func (s *Session) Chart(functionType string) (domain.ChartPayload, bool) {
	return s.charts.Get(functionType)
}

// Zoom moves the camera. Address lookups run without the session lock.
func (s *Session) Zoom(ctx context.Context, req domain.ZoomRequest) (domain.CameraTarget, bool, error) {
	if a, ok := req.(domain.ZoomToAddress); ok {
		if strings.TrimSpace(a.Query) == "" {
			return domain.CameraTarget{}, false, &domain.ValidationError{
				Field:      "query",
				Value:      a.Query,
				Constraint: "non-empty",
				Message:    "address is required",
			}
		}
		return s.zoom.Request(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom.Request(ctx, req)
}

// State returns a read-only projection of the interaction state.
func (s *Session) State() input.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := input.SessionState{
		Mode:    s.modes.Mode(),
		Cursor:  s.modes.Mode().Cursor(),
		Context: s.modes.Context().Name(),
		Loading: s.query.Loading(),
	}
	if d := s.roi.Draft(); d != nil {
		st.DraftBadge = d.Badge
		st.HasDraft = true
	}
	if l, ok := s.sync.SelectedRaster(); ok {
		st.SelectedLayer = l.Name
	}
	if f, ok := s.geoms.Selected(); ok {
		st.SelectedFeature = f.UID
	}
	return st
}

// Reconcile re-asserts the surface against the stores.
func (s *Session) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked()
}

func (s *Session) reconcileLocked() error {
	want := DesiredState{
		Layers:   s.layers.List(),
		Regions:  make(map[string]orb.MultiPolygon),
		Features: s.geoms.Features(),
		Draft:    s.roi.Draft(),
	}
	for _, r := range s.geoms.Regions() {
		want.Regions[r.Name] = r.Geometry
	}
	if f, ok := s.geoms.Selected(); ok {
		want.Selected = f.UID
	}

	err := s.sync.Reconcile(want)

	regions, features := s.geoms.Counts()
	s.metrics.SetLayers(len(want.Layers))
	s.metrics.SetRegions(regions)
	s.metrics.SetFeatures(features)
	s.bus.Publish(Event{Resource: ResourceSurface, Action: "reconciled"})
	return err
}
