package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// Query outcomes reported to metrics.
const (
	QueryStatusSuccess  = "success"
	QueryStatusRejected = "rejected"
	QueryStatusFailed   = "failed"
	QueryStatusStale    = "stale"
)

// RasterSelector reports the raster layer currently targeted by queries.
type RasterSelector interface {
	SelectedRaster() (domain.MapLayer, bool)
}

// QueryHandler validates drawn query geometries against their bound region,
// runs the extraction and materializes the result as a scratch feature.
// It is not safe for concurrent use; the session serializes access and
// the handler releases the session lock only around the extraction call.
type QueryHandler struct {
	locker    sync.Locker
	layers    *LayerStore
	geoms     *GeometryStore
	charts    *ChartSlot
	modes     *ModeController
	caches    *Caches
	selector  RasterSelector
	extractor output.Extractor
	metrics   output.MetricsCollector
	bus       *EventBus
	logger    *slog.Logger
	now       func() time.Time

	inFlight bool
	loading  bool
}

// QueryHandlerDeps bundles the collaborators of a QueryHandler.
type QueryHandlerDeps struct {
	Locker    sync.Locker
	Layers    *LayerStore
	Geoms     *GeometryStore
	Charts    *ChartSlot
	Modes     *ModeController
	Caches    *Caches
	Selector  RasterSelector
	Extractor output.Extractor
	Metrics   output.MetricsCollector
	Bus       *EventBus
	Logger    *slog.Logger
}

// NewQueryHandler creates a query lifecycle handler.
func NewQueryHandler(d QueryHandlerDeps) *QueryHandler {
	return &QueryHandler{
		locker:    d.Locker,
		layers:    d.Layers,
		geoms:     d.Geoms,
		charts:    d.Charts,
		modes:     d.Modes,
		caches:    d.Caches,
		selector:  d.Selector,
		extractor: d.Extractor,
		metrics:   d.Metrics,
		bus:       d.Bus,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// Loading reports whether an extraction is in flight.
func (h *QueryHandler) Loading() bool {
	return h.loading
}

// Execute runs a query for a drawn point or polygon. The caller must hold
// the session lock. A nil feature with a nil error means the geometry was
// discarded because the selected raster has no bound region.
func (h *QueryHandler) Execute(ctx context.Context, g orb.Geometry) (*domain.DrawnQueryFeature, error) {
	if h.inFlight {
		return nil, domain.ErrQueryInFlight
	}
	if _, ok := h.modes.Context().(domain.Querying); !ok {
		return nil, fmt.Errorf("%w: query outside querying context", domain.ErrWrongContext)
	}
	defer h.modes.SetMode(domain.ModeSelect)

	kind, err := domain.KindOf(g)
	if err != nil {
		return nil, err
	}
	if kind == domain.GeometryKindPoint {
		err = domain.ValidatePoint(g.(orb.Point))
	} else {
		err = domain.ValidateArea(g)
	}
	if err != nil {
		return nil, err
	}

	raster, ok := h.selector.SelectedRaster()
	if !ok {
		return nil, domain.ErrNoActiveRaster
	}
	region, ok := h.geoms.Region(raster.AssociatedRegionName)
	if !ok {
		h.logger.Debug("query discarded: no region bound to layer", "layer", raster.Name)
		return nil, nil
	}

	if !domain.Intersects(g, region.Geometry) {
		verr := &domain.GeometryValidationError{Region: region.Name, Layer: raster.Name, Kind: kind}
		h.metrics.IncQueryCount(raster.FunctionType, QueryStatusRejected)
		h.notify("warning", fmt.Sprintf("The %s must lie inside region %s.", kind, region.Name))
		h.logger.Info("query rejected", "layer", raster.Name, "region", region.Name, "kind", kind)
		return nil, verr
	}

	req := domain.ExtractionRequest{
		FunctionType:      raster.FunctionType,
		Geometry:          g,
		AggregationMethod: raster.Analysis.AggregationMethod,
		DateRanges:        raster.Analysis.DateRanges,
	}
	if ref, ok := h.caches.Assets.Get(raster.Name); ok {
		req.TemporaryAssetRef = ref
	}

	h.inFlight = true
	h.setLoading(true)
	defer func() {
		h.inFlight = false
		h.setLoading(false)
	}()

	start := time.Now()
	result, err := h.extractUnlocked(ctx, req)
	h.metrics.ObserveExtractionDuration(raster.FunctionType, time.Since(start))
	if err != nil {
		h.metrics.IncQueryCount(raster.FunctionType, QueryStatusFailed)
		h.notify("error", "The analysis could not be completed.")
		h.logger.Error("extraction failed", "layer", raster.Name, "function", raster.FunctionType, "error", err)
		return nil, &domain.ExtractionError{
			FunctionType: raster.FunctionType,
			Layer:        raster.Name,
			Err:          fmt.Errorf("%w: %v", domain.ErrExtractionUnavailable, err),
		}
	}

	// The source layer may have been removed or replaced while unlocked.
	current, ok := h.layers.Get(raster.Name)
	if !ok || current.ID != raster.ID {
		h.metrics.IncQueryCount(raster.FunctionType, QueryStatusStale)
		h.logger.Info("query result discarded: source layer removed", "layer", raster.Name)
		return nil, domain.ErrStaleResult
	}

	if result != nil && result.TemporaryAssetRef != "" {
		h.caches.Assets.Add(raster.Name, result.TemporaryAssetRef)
	}

	feature := h.geoms.AddFeature(domain.DrawnQueryFeature{
		Kind:            kind,
		Geometry:        g,
		SourceLayerName: raster.Name,
		FunctionType:    raster.FunctionType,
		LayerID:         domain.ScratchLayerPrefix + uuid.NewString(),
		Description:     describeQuery(kind, g, raster),
		Result:          result,
		CreatedAt:       h.now(),
	})
	if err := h.Select(feature.UID); err != nil {
		return nil, err
	}

	h.metrics.IncQueryCount(raster.FunctionType, QueryStatusSuccess)
	h.logger.Info("query completed", "layer", raster.Name, "feature", feature.UID, "kind", kind)
	return &feature, nil
}

// Select opens a drawn feature: the previous selection and its chart
// payload are cleared and the feature's result is published.
func (h *QueryHandler) Select(uid uint64) error {
	f, ok := h.geoms.Feature(uid)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrFeatureNotFound, uid)
	}
	prev, err := h.geoms.Select(uid)
	if err != nil {
		return err
	}
	if prev != 0 && prev != uid {
		h.charts.ClearFeature(prev)
	}
	if !f.Result.IsEmpty() {
		h.charts.Set(domain.ChartPayload{
			FunctionType: f.FunctionType,
			FeatureUID:   f.UID,
			LayerName:    f.SourceLayerName,
			Result:       f.Result,
		})
	}
	return nil
}

// Remove deletes a single drawn feature and its chart payload.
func (h *QueryHandler) Remove(uid uint64) (domain.DrawnQueryFeature, error) {
	f, ok := h.geoms.RemoveFeature(uid)
	if !ok {
		return domain.DrawnQueryFeature{}, fmt.Errorf("%w: %d", domain.ErrFeatureNotFound, uid)
	}
	h.charts.ClearFeature(uid)
	return f, nil
}

// RemoveBySource drops all features queried against a layer.
func (h *QueryHandler) RemoveBySource(layerName string) int {
	removed := h.geoms.RemoveFeaturesBySource(layerName)
	for _, f := range removed {
		h.charts.ClearFeature(f.UID)
	}
	return len(removed)
}

func (h *QueryHandler) extractUnlocked(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	h.locker.Unlock()
	defer h.locker.Lock()
	return h.extractor.Extract(ctx, req)
}

func (h *QueryHandler) setLoading(v bool) {
	h.loading = v
	action := "finished"
	if v {
		action = "started"
	}
	h.bus.Publish(Event{Resource: ResourceLoading, Action: action})
}

func (h *QueryHandler) notify(level, msg string) {
	h.bus.Publish(Event{Resource: ResourceNotification, Action: level, Message: msg})
}

func describeQuery(kind domain.GeometryKind, g orb.Geometry, layer domain.MapLayer) string {
	if kind == domain.GeometryKindPoint {
		p := g.(orb.Point)
		return fmt.Sprintf("Point query on %s at %.5f, %.5f", layer.Name, p.Lat(), p.Lon())
	}
	return fmt.Sprintf("Polygon query on %s (%s)", layer.Name, domain.FormatArea(domain.AreaKm2(g)))
}
