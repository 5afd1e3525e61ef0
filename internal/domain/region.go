package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Provenance records how a region entered the session.
type Provenance string

// Region provenances.
const (
	ProvenanceDrawn           Provenance = "drawn"
	ProvenanceImported        Provenance = "imported"
	ProvenanceAttached        Provenance = "attached"
	ProvenanceSessionRestored Provenance = "sessionRestored"
)

// IsValid returns true for a known provenance.
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceDrawn, ProvenanceImported, ProvenanceAttached, ProvenanceSessionRestored:
		return true
	}
	return false
}

// RegionOfInterest is a finalized, named region. Immutable once created.
type RegionOfInterest struct {
	ID         string           // Stable identifier (uuid)
	Name       string           // Unique region name, equal to its layer name
	Geometry   orb.MultiPolygon // Boundary
	Provenance Provenance       // drawn, imported, attached, sessionRestored
	Color      string           // Assigned display color
	Origin     string           // Source file for imported/restored regions
	AreaKm2    float64          // Spherical area
	CreatedAt  time.Time        // Finalization timestamp
}

// Bound returns the bounding box of the region.
func (r *RegionOfInterest) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// RegionCandidate is a region read from an external source, not yet
// finalized into the geometry store.
type RegionCandidate struct {
	Name     string           // Suggested name
	Geometry orb.MultiPolygon // Boundary
	Origin   string           // Source file or collaborator reference
}

// RegionDraft is a captured but unnamed region geometry.
type RegionDraft struct {
	Geometry orb.MultiPolygon
	AreaKm2  float64
	Badge    string
}
