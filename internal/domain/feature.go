package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// ScratchLayerPrefix prefixes the surface layer of every drawn query feature.
const ScratchLayerPrefix = "query_"

// DrawnQueryFeature is a persisted point/polygon query with its result.
type DrawnQueryFeature struct {
	UID             uint64            // Monotonic identifier
	Kind            GeometryKind      // point or polygon
	Geometry        orb.Geometry      // Drawn geometry
	SourceLayerName string            // Raster layer the query ran against
	FunctionType    string            // Analysis function of the source layer
	LayerID         string            // Scratch surface layer (query_<uuid>)
	Description     string            // Human-readable summary
	Result          *ExtractionResult // Extraction payload
	CreatedAt       time.Time
}

// Coordinates returns the positions of the drawn geometry as
// [lon, lat] pairs; polygons return their outer ring.
func (f *DrawnQueryFeature) Coordinates() [][2]float64 {
	switch g := f.Geometry.(type) {
	case orb.Point:
		return [][2]float64{{g[0], g[1]}}
	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		return ringCoordinates(g[0])
	case orb.MultiPolygon:
		if len(g) == 0 || len(g[0]) == 0 {
			return nil
		}
		return ringCoordinates(g[0][0])
	}
	return nil
}

func ringCoordinates(r orb.Ring) [][2]float64 {
	out := make([][2]float64, len(r))
	for i, p := range r {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}
