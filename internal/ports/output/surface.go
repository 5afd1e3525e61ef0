package output

import (
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/mapcore/internal/domain"
)

// PrimitiveType is the render type of a surface layer.
type PrimitiveType string

// Surface primitive types.
const (
	PrimitiveRaster PrimitiveType = "raster"
	PrimitiveFill   PrimitiveType = "fill"
	PrimitiveLine   PrimitiveType = "line"
	PrimitiveCircle PrimitiveType = "circle"
)

// SourceSpec describes a data source on the map surface.
type SourceSpec struct {
	ID      string                     `json:"id"`
	Type    string                     `json:"type"` // raster or geojson
	TileURL string                     `json:"tile_url,omitempty"`
	Data    *geojson.FeatureCollection `json:"data,omitempty"`
}

// LayerSpec describes a render layer on the map surface.
type LayerSpec struct {
	ID     string         `json:"id"`
	Source string         `json:"source"`
	Type   PrimitiveType  `json:"type"`
	Paint  map[string]any `json:"paint,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
}

// MapSurface defines the secondary port for the imperative map renderer.
// Layer IDs are ordered bottom to top.
type MapSurface interface {
	// AddSource registers a data source.
	AddSource(spec SourceSpec) error

	// RemoveSource removes a data source. Its layers must be removed first.
	RemoveSource(id string) error

	// HasSource reports whether a source exists.
	HasSource(id string) bool

	// AddLayer adds a layer directly below beforeID, or on top when beforeID is empty.
	AddLayer(spec LayerSpec, beforeID string) error

	// RemoveLayer removes a layer.
	RemoveLayer(id string) error

	// HasLayer reports whether a layer exists.
	HasLayer(id string) bool

	// SetPaintProperty sets a paint property of a layer.
	SetPaintProperty(layerID, name string, value any) error

	// SetLayoutProperty sets a layout property of a layer.
	SetLayoutProperty(layerID, name string, value any) error

	// MoveLayer moves a layer directly below beforeID, or to the top when beforeID is empty.
	MoveLayer(id, beforeID string) error

	// LayerIDs returns the current layer stack, bottom first.
	LayerIDs() []string

	// SetCursor changes the canvas cursor.
	SetCursor(c domain.Cursor)
}

// DrawingToolkit defines the secondary port for the sketching library
// attached to the map surface.
type DrawingToolkit interface {
	// ChangeMode switches the toolkit's active tool.
	ChangeMode(mode domain.DrawingMode)

	// DeleteAll discards every sketch the toolkit holds.
	DeleteAll()

	// OverlayLayerIDs returns the surface layers the toolkit renders into.
	OverlayLayerIDs() []string
}

// Camera defines the secondary port for map camera moves.
type Camera interface {
	// FlyTo animates the camera to the target.
	FlyTo(target domain.CameraTarget)
}
