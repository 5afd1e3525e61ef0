package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/mapcore/internal/adapters/regions"
	"github.com/jobrunner/mapcore/internal/domain"
)

// RegionDecoder turns an uploaded region document into candidates.
type RegionDecoder interface {
	Decode(data []byte, fallback string) ([]domain.RegionCandidate, error)
}

// GeoJSONDecoder decodes GeoJSON uploads.
type GeoJSONDecoder struct{}

// Decode implements RegionDecoder.
func (GeoJSONDecoder) Decode(data []byte, fallback string) ([]domain.RegionCandidate, error) {
	return regions.Decode(data, fallback)
}

// handleListRegions returns all finalized regions.
func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	withGeometry := r.URL.Query().Get("geometry") == "true"
	list := s.session.Regions()
	response := make([]map[string]interface{}, len(list))
	for i := range list {
		response[i] = formatRegion(&list[i], withGeometry)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"regions": response,
		"count":   len(list),
	})
}

// handleGetRegion returns a region with its geometry.
func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	region, ok := s.session.Region(mux.Vars(r)["name"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Region not found")
		return
	}
	s.writeJSON(w, http.StatusOK, formatRegion(&region, true))
}

// handleExportRegions returns all regions as a GeoJSON feature collection.
func (s *Server) handleExportRegions(w http.ResponseWriter, _ *http.Request) {
	fc := geojson.NewFeatureCollection()
	for _, region := range s.session.Regions() {
		f := geojson.NewFeature(region.Geometry)
		f.ID = region.ID
		f.Properties["name"] = region.Name
		f.Properties["provenance"] = string(region.Provenance)
		f.Properties["color"] = region.Color
		f.Properties["area_km2"] = region.AreaKm2
		f.Properties["created_at"] = region.CreatedAt
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		s.logger.Error("failed to encode regions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to encode regions")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Disposition", `attachment; filename="regions.geojson"`)
	_, _ = w.Write(data)
}

// handleImportRegions finalizes the polygons of an uploaded GeoJSON
// document. ?provenance= selects attached (default) or imported, ?name=
// names unnamed features.
func (s *Server) handleImportRegions(w http.ResponseWriter, r *http.Request) {
	provenance := domain.ProvenanceAttached
	if p := r.URL.Query().Get("provenance"); p != "" {
		provenance = domain.Provenance(p)
	}
	fallback := r.URL.Query().Get("name")
	if fallback == "" {
		fallback = "Region"
	}

	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	candidates, err := s.decoder.Decode(body, fallback)
	if err != nil {
		s.handleError(w, err)
		return
	}
	for i := range candidates {
		candidates[i].Origin = "upload"
	}

	created, err := s.session.ImportRegions(candidates, provenance)
	if err != nil && len(created) == 0 {
		s.handleError(w, err)
		return
	}

	response := make([]map[string]interface{}, len(created))
	for i := range created {
		response[i] = formatRegion(&created[i], false)
	}
	result := map[string]interface{}{
		"regions": response,
		"count":   len(created),
	}
	if err != nil {
		result["warning"] = err.Error()
	}
	s.writeJSON(w, http.StatusCreated, result)
}

// handleOpenRegionDrawing enters the region-drawing context.
func (s *Server) handleOpenRegionDrawing(w http.ResponseWriter, _ *http.Request) {
	s.session.OpenRegionDrawing()
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleFinalizeRegion names the drafted region.
func (s *Server) handleFinalizeRegion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	region, err := s.session.FinalizeRegion(req.Name)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, formatRegion(&region, false))
}

// handleCancelRegion discards the draft. It is the Escape key.
func (s *Server) handleCancelRegion(w http.ResponseWriter, _ *http.Request) {
	s.session.CancelRegion()
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleCloseRegionPanel discards the draft and leaves region drawing.
func (s *Server) handleCloseRegionPanel(w http.ResponseWriter, _ *http.Request) {
	s.session.CloseRegionPanel()
	s.writeJSON(w, http.StatusOK, s.session.State())
}
