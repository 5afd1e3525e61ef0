package output

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
)

// Extractor defines the secondary port for the remote extraction pipeline.
type Extractor interface {
	// Extract runs an analysis function over a geometry.
	Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error)
}

// Geocoder defines the secondary port for address lookup.
type Geocoder interface {
	// Geocode resolves a free-text address to a WGS84 point.
	Geocode(ctx context.Context, query string) (orb.Point, error)
}
