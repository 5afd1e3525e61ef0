package http

import (
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/input"
)

// formatLayer formats a layer for JSON output.
func formatLayer(l *domain.MapLayer) map[string]interface{} {
	out := map[string]interface{}{
		"id":       l.ID,
		"name":     l.Name,
		"kind":     l.Kind,
		"visible":  l.Visible,
		"opacity":  l.Opacity,
		"added_at": l.AddedAt,
	}
	if c := l.EffectiveColor(); c != "" {
		out["color"] = c
	}
	if l.IsRegion() {
		out["vector_type"] = l.VectorType
	}
	if l.IsRaster() {
		out["function_type"] = l.FunctionType
		out["tile_url"] = l.Analysis.TileURL
		if l.AssociatedRegionName != "" {
			out["region_name"] = l.AssociatedRegionName
		}
		if l.Analysis.AggregationMethod != "" {
			out["aggregation_method"] = l.Analysis.AggregationMethod
		}
		if len(l.Analysis.DateRanges) > 0 {
			out["date_ranges"] = l.Analysis.DateRanges
		}
		if l.Statistics != nil {
			out["statistics"] = l.Statistics
		}
	}
	return out
}

// formatRegion formats a region for JSON output.
func formatRegion(r *domain.RegionOfInterest, withGeometry bool) map[string]interface{} {
	out := map[string]interface{}{
		"id":         r.ID,
		"name":       r.Name,
		"provenance": r.Provenance,
		"color":      r.Color,
		"area_km2":   r.AreaKm2,
		"area":       domain.FormatArea(r.AreaKm2),
		"created_at": r.CreatedAt,
	}
	if r.Origin != "" {
		out["origin"] = r.Origin
	}
	if withGeometry {
		out["geometry"] = geojson.NewGeometry(r.Geometry)
	}
	return out
}

// formatFeature formats a drawn query feature for the feature table.
func formatFeature(f *domain.DrawnQueryFeature) map[string]interface{} {
	return map[string]interface{}{
		"uid":           f.UID,
		"kind":          f.Kind,
		"layer_id":      f.LayerID,
		"source_layer":  f.SourceLayerName,
		"function_type": f.FunctionType,
		"description":   f.Description,
		"coordinates":   f.Coordinates(),
		"geometry":      geojson.NewGeometry(f.Geometry),
		"result":        f.Result,
		"created_at":    f.CreatedAt,
	}
}

// formatOutcome formats the result of a sketch or click.
func formatOutcome(o input.DrawOutcome) map[string]interface{} {
	out := map[string]interface{}{"discarded": o.Discarded}
	if o.Draft != nil {
		out["draft"] = map[string]interface{}{
			"area_km2": o.Draft.AreaKm2,
			"badge":    o.Draft.Badge,
		}
	}
	if o.Feature != nil {
		out["feature"] = formatFeature(o.Feature)
	}
	return out
}
