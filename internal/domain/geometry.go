package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// GeometryKind is the kind of a drawn query geometry.
type GeometryKind string

// Geometry kinds accepted by the query handler.
const (
	GeometryKindPoint   GeometryKind = "point"
	GeometryKindPolygon GeometryKind = "polygon"
)

// KindOf classifies a drawn geometry.
func KindOf(g orb.Geometry) (GeometryKind, error) {
	switch g.(type) {
	case orb.Point:
		return GeometryKindPoint, nil
	case orb.Polygon, orb.MultiPolygon:
		return GeometryKindPolygon, nil
	default:
		return "", fmt.Errorf("%w: unsupported type %s", ErrInvalidGeometry, geometryType(g))
	}
}

// VectorTypeOf returns the surface primitive class for a geometry.
func VectorTypeOf(g orb.Geometry) VectorType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return VectorPoint
	case orb.LineString, orb.MultiLineString:
		return VectorLine
	default:
		return VectorPolygon
	}
}

// ValidatePoint checks a WGS84 point.
func ValidatePoint(p orb.Point) error {
	if p.Lon() < -180 || p.Lon() > 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      p.Lon(),
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	if p.Lat() < -90 || p.Lat() > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      p.Lat(),
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	return nil
}

// ValidateArea checks that g is a polygon or multipolygon with closed rings
// of at least four positions and valid WGS84 coordinates.
func ValidateArea(g orb.Geometry) error {
	switch geom := g.(type) {
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
		}
		for _, p := range geom {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: expected polygon, got %s", ErrInvalidGeometry, geometryType(g))
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: polygon without rings", ErrInvalidGeometry)
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d positions, need at least 4", ErrInvalidGeometry, i, len(ring))
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
		for _, pt := range ring {
			if err := ValidatePoint(pt); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToMultiPolygon normalises an area geometry.
func ToMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch geom := g.(type) {
	case orb.MultiPolygon:
		return geom, true
	case orb.Polygon:
		return orb.MultiPolygon{geom}, true
	}
	return nil, false
}

// AreaKm2 returns the spherical area of g in square kilometres.
func AreaKm2(g orb.Geometry) float64 {
	return math.Abs(geo.Area(g)) / 1e6
}

// FormatArea renders an area for the region status badge.
func FormatArea(km2 float64) string {
	return fmt.Sprintf("%.2f km²", km2)
}

// Centroid returns the area-weighted centroid of g, falling back to the
// bounding-box center for degenerate geometries.
func Centroid(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, area := planar.CentroidArea(g)
	if area == 0 {
		return g.Bound().Center()
	}
	return c
}

// Intersects reports whether a query geometry (point or area) shares at least
// one point with a region.
func Intersects(query orb.Geometry, region orb.MultiPolygon) bool {
	if len(region) == 0 {
		return false
	}
	if !query.Bound().Intersects(region.Bound()) {
		return false
	}

	switch q := query.(type) {
	case orb.Point:
		return planar.MultiPolygonContains(region, q)
	case orb.Polygon:
		return polygonIntersectsRegion(q, region)
	case orb.MultiPolygon:
		for _, p := range q {
			if polygonIntersectsRegion(p, region) {
				return true
			}
		}
	}
	return false
}

func polygonIntersectsRegion(p orb.Polygon, region orb.MultiPolygon) bool {
	if len(p) == 0 {
		return false
	}

	// Any query vertex inside the region.
	for _, pt := range p[0] {
		if planar.MultiPolygonContains(region, pt) {
			return true
		}
	}

	// Any region vertex inside the query polygon.
	for _, rp := range region {
		if len(rp) == 0 {
			continue
		}
		for _, pt := range rp[0] {
			if planar.PolygonContains(p, pt) {
				return true
			}
		}
	}

	// Crossing edges without contained vertices.
	for _, rp := range region {
		for _, ring := range rp {
			if ringsCross(p[0], ring) {
				return true
			}
		}
	}
	return false
}

func ringsCross(a, b orb.Ring) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "nil"
	}
	return g.GeoJSONType()
}
