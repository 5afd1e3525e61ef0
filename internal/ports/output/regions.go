package output

import (
	"context"

	"github.com/jobrunner/mapcore/internal/domain"
)

// RegionReader defines the secondary port for decoding region files.
type RegionReader interface {
	// Supports reports whether the reader understands the file at path.
	Supports(path string) bool

	// ReadRegions decodes all area geometries in a file.
	ReadRegions(ctx context.Context, path string) ([]domain.RegionCandidate, error)
}
