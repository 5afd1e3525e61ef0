package application

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// Surface IDs owned by the engine. Stored layers are keyed on their ID, never
// their name, so no name can shadow another entry's primitives.
const (
	DraftLayerID  = "roi-draft"
	layerPrefix   = "layer-"
	borderSuffix  = "-border"
	draftColor    = "#ffcc00"
	scratchColor  = "#ff5722"
	selectedColor = "#e91e63"
)

// DesiredState is the store snapshot the surface is reconciled against.
type DesiredState struct {
	Layers   []domain.MapLayer // bottom first
	Regions  map[string]orb.MultiPolygon
	Features []domain.DrawnQueryFeature
	Selected uint64 // selected feature UID
	Draft    *domain.RegionDraft
}

// SurfaceID returns the source and primitive ID of a stored layer.
func SurfaceID(l domain.MapLayer) string {
	return layerPrefix + l.ID
}

// BorderID returns the ID of the line primitive drawn over a polygon fill.
func BorderID(id string) string {
	return id + borderSuffix
}

// Move places a surface layer directly below Before, or on top when Before is empty.
type Move struct {
	ID     string
	Before string
}

// PlanOrder returns the moves that bring the desired IDs into the given
// bottom-to-top order on a surface currently ordered as current. Moves are
// issued from the top down, each placing a layer directly below the next
// higher one. Layers already in place produce no move. Repeated desired IDs
// keep their lowest position.
func PlanOrder(current, desired []string) []Move {
	desired = uniqueIDs(desired)
	sim := slices.Clone(current)
	var moves []Move

	for i := len(desired) - 1; i >= 0; i-- {
		id := desired[i]
		pos := slices.Index(sim, id)
		if pos < 0 {
			continue
		}

		before := ""
		if i < len(desired)-1 {
			before = desired[i+1]
		}

		if before == "" {
			if pos == len(sim)-1 {
				continue
			}
		} else if bpos := slices.Index(sim, before); bpos < 0 {
			continue
		} else if pos+1 == bpos {
			continue
		}

		moves = append(moves, Move{ID: id, Before: before})
		sim = moveIn(sim, id, before)
	}
	return moves
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func moveIn(ids []string, id, before string) []string {
	ids = slices.DeleteFunc(ids, func(s string) bool { return s == id })
	at := slices.Index(ids, before)
	if before == "" || at < 0 {
		return append(ids, id)
	}
	return slices.Insert(ids, at, id)
}

// rendered is what the engine last put on the surface for one logical entry.
type rendered struct {
	key        string // layer ID, feature layer ID or DraftLayerID
	name       string // layer name for cache purges; empty for non-store entries
	src        output.SourceSpec
	primitives []output.LayerSpec // bottom first
	visible    bool
	opacity    float64
	color      string
	draft      *domain.RegionDraft
}

// SyncEngine reconciles the stores against the imperative map surface.
// It is not safe for concurrent use; the session serializes access.
type SyncEngine struct {
	surface output.MapSurface
	toolkit output.DrawingToolkit
	caches  *Caches
	metrics output.MetricsCollector
	logger  *slog.Logger

	rendered map[string]*rendered
	selected domain.MapLayer
	hasSel   bool
}

// NewSyncEngine creates an engine for an empty surface.
func NewSyncEngine(surface output.MapSurface, toolkit output.DrawingToolkit, caches *Caches, metrics output.MetricsCollector, logger *slog.Logger) *SyncEngine {
	return &SyncEngine{
		surface:  surface,
		toolkit:  toolkit,
		caches:   caches,
		metrics:  metrics,
		logger:   logger,
		rendered: make(map[string]*rendered),
	}
}

// SelectedRaster returns the topmost visible raster layer as of the last
// reconcile.
func (e *SyncEngine) SelectedRaster() (domain.MapLayer, bool) {
	return e.selected, e.hasSel
}

// Reconcile brings the surface in line with the desired state: removals,
// additions, style updates and finally z-order. Surface errors are logged
// and joined; reconciliation continues past them.
func (e *SyncEngine) Reconcile(want DesiredState) error {
	var errs []error
	entries := e.desiredEntries(want)

	wanted := make(map[string]*rendered, len(entries))
	for _, d := range entries {
		wanted[d.key] = d
	}

	// Remove entries that are gone, or whose draft geometry changed.
	for key, r := range e.rendered {
		d, ok := wanted[key]
		if ok && d.draft == r.draft {
			continue
		}
		errs = append(errs, e.remove(r)...)
		delete(e.rendered, key)
		if r.name != "" && !ok {
			e.caches.Purge(r.name)
		}
	}

	for _, d := range entries {
		r, ok := e.rendered[d.key]
		if !ok {
			if err := e.add(d); err != nil {
				errs = append(errs, err)
				continue
			}
			e.rendered[d.key] = d
			continue
		}
		errs = append(errs, e.style(r, d)...)
	}

	errs = append(errs, e.order(entries)...)
	e.selectRaster(want.Layers)

	err := errors.Join(errs...)
	if err != nil {
		e.logger.Warn("surface reconcile incomplete", "error", err)
	}
	return err
}

// desiredEntries builds the entries to render, bottom first: stored layers,
// scratch features, then the region draft.
func (e *SyncEngine) desiredEntries(want DesiredState) []*rendered {
	out := make([]*rendered, 0, len(want.Layers)+len(want.Features)+1)

	for _, l := range want.Layers {
		id := SurfaceID(l)
		switch {
		case l.IsRaster():
			out = append(out, &rendered{
				key:  l.ID,
				name: l.Name,
				src:  output.SourceSpec{ID: id, Type: "raster", TileURL: l.Analysis.TileURL},
				primitives: []output.LayerSpec{{
					ID: id, Source: id, Type: output.PrimitiveRaster,
				}},
				visible: l.Visible,
				opacity: l.Opacity,
			})
		case l.IsRegion():
			geom, ok := want.Regions[l.AssociatedRegionName]
			if !ok {
				continue
			}
			out = append(out, &rendered{
				key:        l.ID,
				name:       l.Name,
				src:        geoJSONSource(id, geom),
				primitives: vectorPrimitives(id, l.VectorType),
				visible:    l.Visible,
				opacity:    l.Opacity,
				color:      l.EffectiveColor(),
			})
		}
	}

	for _, f := range want.Features {
		color := scratchColor
		if f.UID == want.Selected {
			color = selectedColor
		}
		out = append(out, &rendered{
			key:        f.LayerID,
			src:        geoJSONSource(f.LayerID, f.Geometry),
			primitives: vectorPrimitives(f.LayerID, domain.VectorTypeOf(f.Geometry)),
			visible:    true,
			opacity:    1,
			color:      color,
		})
	}

	if want.Draft != nil {
		out = append(out, &rendered{
			key:        DraftLayerID,
			src:        geoJSONSource(DraftLayerID, want.Draft.Geometry),
			primitives: vectorPrimitives(DraftLayerID, domain.VectorPolygon),
			visible:    true,
			opacity:    0.5,
			color:      draftColor,
			draft:      want.Draft,
		})
	}
	return out
}

func geoJSONSource(id string, g orb.Geometry) output.SourceSpec {
	fc := geojson.NewFeatureCollection()
	if g != nil {
		fc.Append(geojson.NewFeature(g))
	}
	return output.SourceSpec{ID: id, Type: "geojson", Data: fc}
}

// vectorPrimitives returns the surface layers of a vector entry, bottom first.
// Polygons get a fill and a border line.
func vectorPrimitives(id string, vt domain.VectorType) []output.LayerSpec {
	switch vt {
	case domain.VectorPoint:
		return []output.LayerSpec{{ID: id, Source: id, Type: output.PrimitiveCircle}}
	case domain.VectorLine:
		return []output.LayerSpec{{ID: id, Source: id, Type: output.PrimitiveLine}}
	default:
		return []output.LayerSpec{
			{ID: id, Source: id, Type: output.PrimitiveFill},
			{ID: BorderID(id), Source: id, Type: output.PrimitiveLine},
		}
	}
}

func (e *SyncEngine) add(d *rendered) error {
	src := d.src
	if !e.surface.HasSource(src.ID) {
		if err := e.surface.AddSource(src); err != nil {
			return &domain.SurfaceError{Op: "addSource", LayerID: src.ID, Err: err}
		}
		e.metrics.IncSurfaceOps("addSource", 1)
	}
	for _, p := range d.primitives {
		p.Paint = paintFor(p.Type, d.opacity, d.color)
		p.Layout = map[string]any{"visibility": visibility(d.visible)}
		if err := e.surface.AddLayer(p, ""); err != nil {
			return &domain.SurfaceError{Op: "addLayer", LayerID: p.ID, Err: err}
		}
		e.metrics.IncSurfaceOps("addLayer", 1)
	}
	e.logger.Debug("surface entry added", "key", d.key, "source", src.ID)
	return nil
}

func (e *SyncEngine) remove(r *rendered) []error {
	var errs []error
	for i := len(r.primitives) - 1; i >= 0; i-- {
		id := r.primitives[i].ID
		if !e.surface.HasLayer(id) {
			continue
		}
		if err := e.surface.RemoveLayer(id); err != nil {
			errs = append(errs, &domain.SurfaceError{Op: "removeLayer", LayerID: id, Err: err})
			continue
		}
		e.metrics.IncSurfaceOps("removeLayer", 1)
	}
	if e.surface.HasSource(r.src.ID) {
		if err := e.surface.RemoveSource(r.src.ID); err != nil {
			errs = append(errs, &domain.SurfaceError{Op: "removeSource", LayerID: r.src.ID, Err: err})
		} else {
			e.metrics.IncSurfaceOps("removeSource", 1)
		}
	}
	e.logger.Debug("surface entry removed", "key", r.key, "source", r.src.ID)
	return errs
}

// style pushes visibility, opacity and color changes of an entry.
func (e *SyncEngine) style(r, d *rendered) []error {
	var errs []error
	if r.visible != d.visible {
		for _, p := range r.primitives {
			if err := e.surface.SetLayoutProperty(p.ID, "visibility", visibility(d.visible)); err != nil {
				errs = append(errs, &domain.SurfaceError{Op: "setLayoutProperty", LayerID: p.ID, Err: err})
				continue
			}
			e.metrics.IncSurfaceOps("setLayoutProperty", 1)
		}
		r.visible = d.visible
	}
	if r.opacity != d.opacity || r.color != d.color {
		for _, p := range r.primitives {
			for prop, v := range paintFor(p.Type, d.opacity, d.color) {
				if err := e.surface.SetPaintProperty(p.ID, prop, v); err != nil {
					errs = append(errs, &domain.SurfaceError{Op: "setPaintProperty", LayerID: p.ID, Err: err})
					continue
				}
				e.metrics.IncSurfaceOps("setPaintProperty", 1)
			}
		}
		r.opacity = d.opacity
		r.color = d.color
	}
	return errs
}

// order re-asserts the z-stack: entries in order, toolkit overlays on top.
func (e *SyncEngine) order(entries []*rendered) []error {
	var desired []string
	for _, d := range entries {
		for _, p := range d.primitives {
			desired = append(desired, p.ID)
		}
	}
	for _, id := range e.toolkit.OverlayLayerIDs() {
		if e.surface.HasLayer(id) {
			desired = append(desired, id)
		}
	}

	var errs []error
	for _, m := range PlanOrder(e.surface.LayerIDs(), desired) {
		if err := e.surface.MoveLayer(m.ID, m.Before); err != nil {
			errs = append(errs, &domain.SurfaceError{Op: "moveLayer", LayerID: m.ID, Err: err})
			continue
		}
		e.metrics.IncSurfaceOps("moveLayer", 1)
	}
	return errs
}

func (e *SyncEngine) selectRaster(layers []domain.MapLayer) {
	prev := e.selected.Name
	e.selected, e.hasSel = domain.MapLayer{}, false
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i].IsRaster() && layers[i].Visible {
			e.selected, e.hasSel = layers[i], true
			break
		}
	}
	if e.selected.Name != prev {
		e.logger.Debug("query target changed", "layer", e.selected.Name)
	}
}

func paintFor(t output.PrimitiveType, opacity float64, color string) map[string]any {
	switch t {
	case output.PrimitiveRaster:
		return map[string]any{"raster-opacity": opacity}
	case output.PrimitiveFill:
		return map[string]any{"fill-color": color, "fill-opacity": opacity}
	case output.PrimitiveCircle:
		return map[string]any{"circle-color": color, "circle-opacity": opacity}
	default:
		return map[string]any{"line-color": color, "line-opacity": opacity}
	}
}

func visibility(v bool) string {
	if v {
		return "visible"
	}
	return "none"
}
