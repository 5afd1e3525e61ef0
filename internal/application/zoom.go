package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// mercatorWorldWidth is the width of the web mercator plane in metres.
const mercatorWorldWidth = 2 * math.Pi * orb.EarthRadius

// ZoomConfig bounds the zoom levels chosen by the coordinator.
type ZoomConfig struct {
	MinZoom         float64
	MaxZoom         float64
	AddressZoom     float64
	AnimationWindow time.Duration
}

// DefaultZoomConfig returns the zoom bounds used when none are configured.
func DefaultZoomConfig() ZoomConfig {
	return ZoomConfig{
		MinZoom:         3,
		MaxZoom:         16,
		AddressZoom:     15,
		AnimationWindow: 1500 * time.Millisecond,
	}
}

// ZoomCoordinator turns zoom requests into camera moves.
type ZoomCoordinator struct {
	layers   *LayerStore
	geoms    *GeometryStore
	geocoder output.Geocoder
	camera   output.Camera
	cfg      ZoomConfig
	bus      *EventBus
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastKey string
	lastAt  time.Time
}

// NewZoomCoordinator creates a coordinator. geocoder may be nil, in which
// case address requests fail with ErrGeocoderUnavailable.
func NewZoomCoordinator(layers *LayerStore, geoms *GeometryStore, geocoder output.Geocoder, camera output.Camera, cfg ZoomConfig, bus *EventBus, logger *slog.Logger) *ZoomCoordinator {
	return &ZoomCoordinator{
		layers:   layers,
		geoms:    geoms,
		geocoder: geocoder,
		camera:   camera,
		cfg:      cfg,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// Request moves the camera for a zoom request. It reports whether the
// camera moved; requests for unknown layers or features and repeats inside
// the animation window are no-ops.
func (z *ZoomCoordinator) Request(ctx context.Context, req domain.ZoomRequest) (domain.CameraTarget, bool, error) {
	if z.duplicate(req.Key()) {
		z.logger.Debug("zoom request ignored: animation in progress", "request", req.Key())
		return domain.CameraTarget{}, false, nil
	}

	target, ok, err := z.resolve(ctx, req)
	if err != nil || !ok {
		return domain.CameraTarget{}, false, err
	}

	z.mu.Lock()
	z.lastKey = req.Key()
	z.lastAt = z.now()
	z.mu.Unlock()

	z.camera.FlyTo(target)
	z.bus.Publish(Event{Resource: ResourceCamera, Action: "moved", ID: req.Key()})
	return target, true, nil
}

func (z *ZoomCoordinator) duplicate(key string) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return key == z.lastKey && z.now().Sub(z.lastAt) < z.cfg.AnimationWindow
}

func (z *ZoomCoordinator) resolve(ctx context.Context, req domain.ZoomRequest) (domain.CameraTarget, bool, error) {
	switch r := req.(type) {
	case domain.ZoomToLayer:
		g, ok := z.layerGeometry(r.Name)
		if !ok {
			return domain.CameraTarget{}, false, nil
		}
		return z.Fit(g), true, nil

	case domain.ZoomToFeature:
		f, ok := z.geoms.Feature(r.UID)
		if !ok {
			return domain.CameraTarget{}, false, nil
		}
		return z.Fit(f.Geometry), true, nil

	case domain.ZoomToAddress:
		if z.geocoder == nil {
			return domain.CameraTarget{}, false, domain.ErrGeocoderUnavailable
		}
		p, err := z.geocoder.Geocode(ctx, r.Query)
		if err != nil {
			return domain.CameraTarget{}, false, fmt.Errorf("geocode %q: %w", r.Query, err)
		}
		return domain.CameraTarget{Center: p, Zoom: z.cfg.AddressZoom}, true, nil
	}
	return domain.CameraTarget{}, false, fmt.Errorf("%w: zoom request %T", domain.ErrUnsupported, req)
}

// layerGeometry returns the region behind a layer: the region itself for
// region layers, the bound region for rasters.
func (z *ZoomCoordinator) layerGeometry(name string) (orb.Geometry, bool) {
	l, ok := z.layers.Get(name)
	if !ok || l.AssociatedRegionName == "" {
		return nil, false
	}
	r, ok := z.geoms.Region(l.AssociatedRegionName)
	if !ok {
		return nil, false
	}
	return r.Geometry, true
}

// Fit returns the centroid of g and a zoom level log-scaled on its web
// mercator area, clamped to the configured bounds.
func (z *ZoomCoordinator) Fit(g orb.Geometry) domain.CameraTarget {
	center := domain.Centroid(g)

	area := math.Abs(planar.Area(project.Geometry(orb.Clone(g), project.WGS84.ToMercator)))
	if area <= 0 {
		return domain.CameraTarget{Center: center, Zoom: z.cfg.MaxZoom}
	}

	zoom := math.Log2(mercatorWorldWidth / math.Sqrt(area))
	zoom = math.Max(z.cfg.MinZoom, math.Min(z.cfg.MaxZoom, zoom))
	return domain.CameraTarget{Center: center, Zoom: math.Round(zoom*100) / 100}
}
