package regions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/mapcore/internal/domain"
)

// GeoJSONReader reads regions from GeoJSON files. Coordinates must be WGS84
// longitude/latitude.
type GeoJSONReader struct{}

// NewGeoJSONReader creates a GeoJSON region reader.
func NewGeoJSONReader() *GeoJSONReader {
	return &GeoJSONReader{}
}

// Supports reports whether path is a GeoJSON file.
func (r *GeoJSONReader) Supports(path string) bool {
	return hasExt(path, ".geojson", ".json")
}

// ReadRegions reads every polygon feature of a GeoJSON file.
func (r *GeoJSONReader) ReadRegions(_ context.Context, path string) ([]domain.RegionCandidate, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path comes from the import directory or storage cache
	if err != nil {
		return nil, &domain.StorageError{Operation: "read", Key: path, Err: err}
	}
	candidates, err := Decode(data, NameFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candidates, nil
}

// header is the part of a GeoJSON object needed for dispatch.
type header struct {
	Type string `json:"type"`
	CRS  *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// Decode parses a feature collection, a single feature or a bare geometry.
// Non-area features are skipped; unnamed features are named after fallback
// with a running number.
func Decode(data []byte, fallback string) ([]domain.RegionCandidate, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &domain.ValidationError{Field: "geojson", Constraint: "valid JSON", Message: err.Error()}
	}
	if h.CRS != nil && !isWGS84(h.CRS.Properties.Name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProjection, h.CRS.Properties.Name)
	}

	var features []*geojson.Feature
	switch h.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, invalid(err)
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, invalid(err)
		}
		features = []*geojson.Feature{f}
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, invalid(err)
		}
		features = []*geojson.Feature{geojson.NewFeature(g.Geometry())}
	}

	return fromFeatures(features, fallback)
}

func fromFeatures(features []*geojson.Feature, fallback string) ([]domain.RegionCandidate, error) {
	var (
		out     []domain.RegionCandidate
		skipped int
	)
	for _, f := range features {
		if f == nil {
			continue
		}
		mp, ok := domain.ToMultiPolygon(f.Geometry)
		if !ok {
			skipped++
			continue
		}
		name := nameFrom(f.Properties)
		if name == "" {
			name = fmt.Sprintf("%s %d", fallback, len(out)+1)
		}
		out = append(out, domain.RegionCandidate{Name: name, Geometry: mp})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no polygon features (%d skipped)", domain.ErrInvalidGeometry, skipped)
	}
	return out, nil
}

func invalid(err error) error {
	return errors.Join(domain.ErrInvalidGeometry, err)
}

func isWGS84(crs string) bool {
	crs = strings.ToUpper(crs)
	return strings.HasSuffix(crs, "CRS84") || strings.HasSuffix(crs, ":4326")
}
