package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/mapcore/internal/application"
	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/input"
)

// LayerPatchRequest is the body of a layer update.
type LayerPatchRequest struct {
	Visible *bool    `json:"visible,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Color   *string  `json:"color,omitempty"`
}

// ModeRequest is the body of a mode change.
type ModeRequest struct {
	Mode string `json:"mode"`
	// External marks a change the drawing toolkit already made itself.
	External bool `json:"external,omitempty"`
}

// ZoomRequest is the body of a zoom request. Exactly one field is set.
type ZoomRequest struct {
	Layer   string  `json:"layer,omitempty"`
	Feature *uint64 `json:"feature,omitempty"`
	Address string  `json:"address,omitempty"`
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"restored":   details.Restored,
		"layers":     details.Layers,
		"regions":    details.Regions,
		"features":   details.Features,
		"components": details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleState returns the interaction state.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleListLayers returns the layer stack, bottom first.
func (s *Server) handleListLayers(w http.ResponseWriter, _ *http.Request) {
	layers := s.session.Layers()
	response := make([]map[string]interface{}, len(layers))
	for i := range layers {
		response[i] = formatLayer(&layers[i])
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"layers": response,
		"count":  len(layers),
	})
}

// handleAddLayer adds an analysis raster.
func (s *Server) handleAddLayer(w http.ResponseWriter, r *http.Request) {
	var req input.AddRasterRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	layer, err := s.session.AddRasterLayer(req)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, formatLayer(&layer))
}

// handleGetLayer returns a layer by name.
func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	layer, ok := s.session.Layer(mux.Vars(r)["name"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Layer not found")
		return
	}
	s.writeJSON(w, http.StatusOK, formatLayer(&layer))
}

// handleUpdateLayer changes visibility, opacity or color.
func (s *Server) handleUpdateLayer(w http.ResponseWriter, r *http.Request) {
	var req LayerPatchRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	layer, err := s.session.UpdateLayer(mux.Vars(r)["name"], domain.LayerPatch{
		Visible: req.Visible,
		Opacity: req.Opacity,
		Color:   req.Color,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, formatLayer(&layer))
}

// handleRemoveLayer removes a layer. For region layers this also removes
// the region.
func (s *Server) handleRemoveLayer(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RemoveLayer(mux.Vars(r)["name"]); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderLayers sets the stack order.
func (s *Server) handleReorderLayers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.ReorderLayers(req.Names); err != nil {
		s.handleError(w, err)
		return
	}
	s.handleListLayers(w, r)
}

// handleLayerStatistics returns the legend statistics of a raster.
func (s *Server) handleLayerStatistics(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.session.Statistics(mux.Vars(r)["name"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "No statistics for layer")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleSetMode switches the drawing mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := domain.ParseDrawingMode(req.Mode)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if req.External {
		s.session.ModeChangedExternally(mode)
	} else {
		s.session.SetMode(mode)
	}
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleDrawComplete hands a finished sketch, given as a GeoJSON geometry
// or feature, to the active lifecycle handler.
func (s *Server) handleDrawComplete(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := parseGeometry(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.session.DrawComplete(r.Context(), g)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, formatOutcome(outcome))
}

// handleClick handles a map click.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lon *float64 `json:"lon"`
		Lat *float64 `json:"lat"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Lon == nil || req.Lat == nil {
		s.writeError(w, http.StatusBadRequest, "coordinates required: lon and lat")
		return
	}
	if *req.Lon < -180 || *req.Lon > 180 || *req.Lat < -90 || *req.Lat > 90 {
		s.writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	outcome, err := s.session.Click(r.Context(), orb.Point{*req.Lon, *req.Lat})
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, formatOutcome(outcome))
}

// handleZoom moves the camera.
func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var zr domain.ZoomRequest
	set := 0
	if req.Layer != "" {
		zr = domain.ZoomToLayer{Name: req.Layer}
		set++
	}
	if req.Feature != nil {
		zr = domain.ZoomToFeature{UID: *req.Feature}
		set++
	}
	if req.Address != "" {
		zr = domain.ZoomToAddress{Query: req.Address}
		set++
	}
	if set != 1 {
		s.writeError(w, http.StatusBadRequest, "exactly one of layer, feature or address is required")
		return
	}

	target, moved, err := s.session.Zoom(r.Context(), zr)
	if err != nil {
		s.handleError(w, err)
		return
	}
	response := map[string]interface{}{"moved": moved}
	if moved {
		response["center"] = []float64{target.Center.Lon(), target.Center.Lat()}
		response["zoom"] = target.Zoom
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleListFeatures returns the feature table.
func (s *Server) handleListFeatures(w http.ResponseWriter, _ *http.Request) {
	features := s.session.Features()
	response := make([]map[string]interface{}, len(features))
	for i := range features {
		response[i] = formatFeature(&features[i])
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"features": response,
		"count":    len(features),
	})
}

// handleSelectFeature opens a drawn feature for charting.
func (s *Server) handleSelectFeature(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.SelectFeature(uid); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleRemoveFeature deletes a drawn feature.
func (s *Server) handleRemoveFeature(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.RemoveFeature(uid); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCharts returns all chart-ready payloads.
func (s *Server) handleListCharts(w http.ResponseWriter, _ *http.Request) {
	charts := s.session.Charts()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"charts": charts,
		"count":  len(charts),
	})
}

// handleGetChart returns the chart payload of one function type.
func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	chart, ok := s.session.Chart(mux.Vars(r)["functionType"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "No chart data for function type")
		return
	}
	s.writeJSON(w, http.StatusOK, chart)
}

// handleSurfaceOps returns the journaled surface operations after ?since=N.
func (s *Server) handleSurfaceOps(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = n
	}
	s.writeJSON(w, http.StatusOK, s.surface.Journal().Since(since))
}

// handleSurfaceSnapshot returns the full surface state.
func (s *Server) handleSurfaceSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.surface.Snapshot())
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncService.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			secs := int(application.SyncCooldown.Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			s.writeError(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs))
			return
		}
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleError maps domain errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	var geomErr *domain.GeometryValidationError
	if errors.As(err, &geomErr) {
		s.writeError(w, http.StatusBadRequest, geomErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupported):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		s.logger.Warn("upstream unavailable", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// decodeJSON decodes a size-limited JSON request body.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.config.MaxUploadBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("request body required")
	}
	return body, nil
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}

func parseUID(r *http.Request) (uint64, error) {
	uid, err := strconv.ParseUint(mux.Vars(r)["uid"], 10, 64)
	if err != nil {
		return 0, errors.New("invalid feature uid")
	}
	return uid, nil
}

// parseGeometry accepts a GeoJSON geometry or a feature wrapping one.
func parseGeometry(body []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	switch strings.ToLower(head.Type) {
	case "feature":
		f, err := geojson.UnmarshalFeature(body)
		if err != nil {
			return nil, fmt.Errorf("invalid GeoJSON feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, errors.New("feature has no geometry")
		}
		return f.Geometry, nil
	case "":
		return nil, errors.New("GeoJSON type required")
	default:
		g, err := geojson.UnmarshalGeometry(body)
		if err != nil {
			return nil, fmt.Errorf("invalid GeoJSON geometry: %w", err)
		}
		return g.Geometry(), nil
	}
}
