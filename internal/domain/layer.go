// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// LayerKind distinguishes analysis rasters from region-of-interest vectors.
type LayerKind string

// Layer kinds.
const (
	LayerKindRaster LayerKind = "raster"
	LayerKindRegion LayerKind = "regionOfInterest"
)

// VectorType is the rendered geometry class of a vector layer.
type VectorType string

// Vector types, matching the primitives a map surface can draw.
const (
	VectorPolygon VectorType = "polygon"
	VectorLine    VectorType = "line"
	VectorPoint   VectorType = "point"
)

// DefaultOpacity is applied to layers added without an explicit opacity.
const DefaultOpacity = 0.8

// MapLayer is one logical layer in the layer store.
type MapLayer struct {
	ID                   string      // Stable identifier (uuid)
	Name                 string      // Display name, unique within the store
	Kind                 LayerKind   // raster or regionOfInterest
	Visible              bool        // Rendered or hidden
	Opacity              float64     // 0..1
	Color                string      // Assigned color (regions)
	ColorOverride        string      // User-picked color, wins over Color
	VectorType           VectorType  // Geometry class for region layers
	FunctionType         string      // Analysis function that produced a raster
	Statistics           *Statistics // Legend statistics for rasters
	AssociatedRegionName string      // Region a raster was computed over
	Analysis             Analysis    // Parameters replayed on extraction
	AddedAt              time.Time   // Insertion timestamp
}

// Analysis holds the parameters a raster layer was computed with.
type Analysis struct {
	TileURL           string      // XYZ tile template for the raster source
	AggregationMethod string      // mean, median, sum, ...
	DateRanges        []DateRange // One range for mono-temporal, two for bi-temporal
}

// DateRange is an inclusive date interval.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Statistics is the summary attached to a raster layer's legend.
type Statistics struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Unit   string  `json:"unit,omitempty"`
}

// IsRaster returns true if the layer is an analysis raster.
func (l *MapLayer) IsRaster() bool {
	return l.Kind == LayerKindRaster
}

// IsRegion returns true if the layer renders a region of interest.
func (l *MapLayer) IsRegion() bool {
	return l.Kind == LayerKindRegion
}

// EffectiveColor returns the user override if set, the assigned color otherwise.
func (l *MapLayer) EffectiveColor() string {
	if l.ColorOverride != "" {
		return l.ColorOverride
	}
	return l.Color
}

// Validate checks the layer's user-controlled properties.
func (l *MapLayer) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return &ValidationError{
			Field:      "name",
			Value:      l.Name,
			Constraint: "non-empty",
			Message:    "layer name is required",
		}
	}
	if l.Opacity < 0 || l.Opacity > 1 {
		return &ValidationError{
			Field:      "opacity",
			Value:      l.Opacity,
			Constraint: "[0, 1]",
			Message:    "opacity must be between 0 and 1",
		}
	}
	switch l.Kind {
	case LayerKindRaster, LayerKindRegion:
	default:
		return &ValidationError{
			Field:      "kind",
			Value:      l.Kind,
			Constraint: "raster|regionOfInterest",
			Message:    "unknown layer kind",
		}
	}
	return nil
}

// UniqueName returns name if it is not taken, otherwise the first free
// "name (n)" for n = 1, 2, ...
func UniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// LayerPatch describes a partial update of a layer's visual properties.
// Nil fields are left unchanged.
type LayerPatch struct {
	Visible *bool
	Opacity *float64
	Color   *string
}

// IsEmpty returns true if the patch changes nothing.
func (p LayerPatch) IsEmpty() bool {
	return p.Visible == nil && p.Opacity == nil && p.Color == nil
}
