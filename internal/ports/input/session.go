// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
)

// MapSession defines the primary port for one interactive map view.
type MapSession interface {
	// AddRasterLayer adds an analysis raster on top of the layer stack.
	AddRasterLayer(req AddRasterRequest) (domain.MapLayer, error)

	// RemoveLayer removes a layer and its dependent state.
	RemoveLayer(name string) error

	// UpdateLayer changes visibility, opacity or color of a layer.
	UpdateLayer(name string, patch domain.LayerPatch) (domain.MapLayer, error)

	// ReorderLayers sets the stack order, bottom first.
	ReorderLayers(names []string) error

	// Layers returns the layer stack, bottom first.
	Layers() []domain.MapLayer

	// Layer returns a layer by name.
	Layer(name string) (domain.MapLayer, bool)

	// Statistics returns the legend statistics of a raster layer.
	Statistics(name string) (domain.Statistics, bool)

	// SetMode switches the drawing mode.
	SetMode(mode domain.DrawingMode)

	// ModeChangedExternally mirrors a mode change made by the drawing toolkit.
	ModeChangedExternally(mode domain.DrawingMode)

	// OpenRegionDrawing enters the region-drawing context.
	OpenRegionDrawing()

	// DrawComplete hands a completed sketch to the active lifecycle handler.
	DrawComplete(ctx context.Context, g orb.Geometry) (DrawOutcome, error)

	// Click handles a map click.
	Click(ctx context.Context, p orb.Point) (DrawOutcome, error)

	// FinalizeRegion names the drafted region.
	FinalizeRegion(name string) (domain.RegionOfInterest, error)

	// CancelRegion discards the region draft (Escape).
	CancelRegion()

	// CloseRegionPanel discards the draft and leaves region drawing.
	CloseRegionPanel()

	// ImportRegions finalizes regions from files or collaborators.
	ImportRegions(candidates []domain.RegionCandidate, provenance domain.Provenance) ([]domain.RegionOfInterest, error)

	// RemoveRegionsByOrigin removes the regions imported from a file.
	RemoveRegionsByOrigin(origin string) int

	// Regions returns all finalized regions.
	Regions() []domain.RegionOfInterest

	// Region returns a region by name.
	Region(name string) (domain.RegionOfInterest, bool)

	// Features returns all drawn query features.
	Features() []domain.DrawnQueryFeature

	// SelectFeature opens a drawn feature for charting.
	SelectFeature(uid uint64) error

	// RemoveFeature deletes a drawn feature.
	RemoveFeature(uid uint64) error

	// Charts returns all chart-ready payloads.
	Charts() []domain.ChartPayload

	// Chart returns the chart-ready payload of a function type.
	Chart(functionType string) (domain.ChartPayload, bool)

	// Zoom moves the camera for a zoom request.
	Zoom(ctx context.Context, req domain.ZoomRequest) (domain.CameraTarget, bool, error)

	// State returns the interaction state projection.
	State() SessionState
}

// AddRasterRequest describes an analysis result to show as a raster layer.
type AddRasterRequest struct {
	Name              string             `json:"name"`
	FunctionType      string             `json:"function_type"`
	RegionName        string             `json:"region_name,omitempty"`
	TileURL           string             `json:"tile_url"`
	AggregationMethod string             `json:"aggregation_method,omitempty"`
	DateRanges        []domain.DateRange `json:"date_ranges,omitempty"`
	Opacity           *float64           `json:"opacity,omitempty"`
	Statistics        *domain.Statistics `json:"statistics,omitempty"`
	TemporaryAssetRef string             `json:"temporary_asset,omitempty"`
}

// DrawOutcome is the result of a completed sketch or click.
type DrawOutcome struct {
	Draft     *domain.RegionDraft       // Set when a region was drafted
	Feature   *domain.DrawnQueryFeature // Set when a query succeeded
	Discarded bool                      // True when the gesture was ignored
}

// SessionState is the read-only interaction state of a map view.
type SessionState struct {
	Mode            domain.DrawingMode `json:"mode"`
	Cursor          domain.Cursor      `json:"cursor"`
	Context         string             `json:"context"`
	Loading         bool               `json:"loading"`
	HasDraft        bool               `json:"has_draft"`
	DraftBadge      string             `json:"draft_badge,omitempty"`
	SelectedLayer   string             `json:"selected_layer,omitempty"`
	SelectedFeature uint64             `json:"selected_feature,omitempty"`
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Layers     int               // Layers in the session
	Regions    int               // Finalized regions
	Features   int               // Drawn query features
	Restored   bool              // Session restore finished
	Components map[string]string // Component statuses
}
