// Package regions reads region-of-interest candidates from GeoJSON and
// GeoPackage files.
package regions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jobrunner/mapcore/internal/domain"
)

// nameKeys are the feature properties tried, in order, for a region name.
var nameKeys = []string{"name", "title", "label", "id"}

// Reader dispatches to the GeoJSON or GeoPackage reader by file extension.
type Reader struct {
	geojson *GeoJSONReader
	gpkg    *GeoPackageReader
}

// NewReader creates a reader for all supported region formats.
func NewReader() *Reader {
	return &Reader{
		geojson: NewGeoJSONReader(),
		gpkg:    NewGeoPackageReader(),
	}
}

// Supports reports whether path has a readable region format.
func (r *Reader) Supports(path string) bool {
	return r.geojson.Supports(path) || r.gpkg.Supports(path)
}

// ReadRegions reads the polygon features of a file as region candidates.
func (r *Reader) ReadRegions(ctx context.Context, path string) ([]domain.RegionCandidate, error) {
	switch {
	case r.geojson.Supports(path):
		return r.geojson.ReadRegions(ctx, path)
	case r.gpkg.Supports(path):
		return r.gpkg.ReadRegions(ctx, path)
	}
	return nil, fmt.Errorf("%w: region file %s", domain.ErrUnsupported, filepath.Base(path))
}

// NameFromPath derives a fallback region name from a file path: the file
// name without extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// nameFrom picks a region name from feature properties, matching keys
// case-insensitively.
func nameFrom(props map[string]any) string {
	for _, key := range nameKeys {
		for k, v := range props {
			if !strings.EqualFold(k, key) || v == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
