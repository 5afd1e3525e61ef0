package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jobrunner/mapcore/internal/application"
	"github.com/jobrunner/mapcore/internal/domain"
)

const farmGeoJSON = `{"type":"Polygon","coordinates":[[[10,50],[11,50],[11,51],[10,51],[10,50]]]}`

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rr.Body.String(), err)
	}
	return resp
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

// drawRegion drafts and finalizes Farm1 through the API.
func (ts *testServer) drawRegion(t *testing.T, name string) {
	t.Helper()
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/roi/open", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"drawPolygon"}`), http.StatusOK)

	rr := ts.do(t, http.MethodPost, "/api/v1/draw-complete", farmGeoJSON)
	expectStatus(t, rr, http.StatusOK)
	draft, _ := decode(t, rr)["draft"].(map[string]interface{})
	if !strings.HasSuffix(fmt.Sprint(draft["badge"]), "km²") {
		t.Fatalf("draft = %v, want an area badge", draft)
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/roi/finalize", `{"name":"`+name+`"}`), http.StatusCreated)
}

func (ts *testServer) addRaster(t *testing.T) {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/v1/layers",
		`{"name":"NDVI","function_type":"ndvi","region_name":"Farm1","tile_url":"https://tiles/{z}/{x}/{y}.png"}`)
	expectStatus(t, rr, http.StatusCreated)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			rr := ts.do(t, http.MethodGet, path, "")
			expectStatus(t, rr, http.StatusOK)
			if resp := decode(t, rr); resp["status"] != "ok" {
				t.Errorf("status = %v, want ok", resp["status"])
			}
		})
	}
}

func TestRegionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.drawRegion(t, "Farm1")

	rr := ts.do(t, http.MethodGet, "/api/v1/regions", "")
	expectStatus(t, rr, http.StatusOK)
	if resp := decode(t, rr); resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	rr = ts.do(t, http.MethodGet, "/api/v1/regions/Farm1", "")
	expectStatus(t, rr, http.StatusOK)
	region := decode(t, rr)
	if region["provenance"] != string(domain.ProvenanceDrawn) || region["geometry"] == nil {
		t.Errorf("region = %v", region)
	}

	// Second region with the same name is suffixed.
	ts.drawRegion(t, "Farm1")
	if _, ok := ts.session.Region("Farm1 (1)"); !ok {
		t.Error("name collision should resolve to Farm1 (1)")
	}

	rr = ts.do(t, http.MethodGet, "/api/v1/regions.geojson", "")
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	fc := decode(t, rr)
	if features, _ := fc["features"].([]interface{}); len(features) != 2 {
		t.Errorf("exported features = %d, want 2", len(features))
	}

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/v1/regions/Farm1", ""), http.StatusNoContent)
	if _, ok := ts.session.Region("Farm1"); ok {
		t.Error("region should be gone after deleting it")
	}
	if _, ok := ts.session.Layer("Farm1"); ok {
		t.Error("region layer should be gone after deleting the region")
	}
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/v1/regions/Farm1", ""), http.StatusNotFound)
}

func TestFinalizeErrors(t *testing.T) {
	ts := newTestServer(t)

	// No draft.
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/roi/finalize", `{"name":"A"}`), http.StatusNotFound)

	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/roi/open", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/draw-complete", farmGeoJSON), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/roi/finalize", `{"name":"   "}`), http.StatusBadRequest)

	// Escape discards the draft without touching the stores.
	rr := ts.do(t, http.MethodPost, "/api/v1/roi/cancel", "")
	expectStatus(t, rr, http.StatusOK)
	if resp := decode(t, rr); resp["has_draft"] != false || resp["mode"] != string(domain.ModeSelect) {
		t.Errorf("state after cancel = %v", resp)
	}
	if len(ts.session.Regions()) != 0 {
		t.Error("cancel must not create a region")
	}
}

func TestQueryFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.drawRegion(t, "Farm1")
	ts.addRaster(t)
	expectStatus(t, ts.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"drawPoint"}`), http.StatusOK)

	rr := ts.do(t, http.MethodPost, "/api/v1/click", `{"lon":10.5,"lat":50.5}`)
	expectStatus(t, rr, http.StatusOK)
	feature, _ := decode(t, rr)["feature"].(map[string]interface{})
	if feature == nil || feature["source_layer"] != "NDVI" {
		t.Fatalf("feature = %v", feature)
	}
	uid := uint64(feature["uid"].(float64))

	rr = ts.do(t, http.MethodGet, "/api/v1/charts/ndvi", "")
	expectStatus(t, rr, http.StatusOK)
	if chart := decode(t, rr); chart["layer_name"] != "NDVI" {
		t.Errorf("chart = %v", chart)
	}

	rr = ts.do(t, http.MethodGet, "/api/v1/features", "")
	expectStatus(t, rr, http.StatusOK)
	if resp := decode(t, rr); resp["count"] != float64(1) {
		t.Errorf("features count = %v", resp["count"])
	}

	// Outside the bound region.
	expectStatus(t, ts.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"drawPoint"}`), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/draw-complete", `{"type":"Point","coordinates":[20,10]}`), http.StatusBadRequest)

	// Extraction failure maps to bad gateway.
	ts.extractor.err = errors.New("pipeline down")
	expectStatus(t, ts.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"drawPoint"}`), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/draw-complete",
		`{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[10.2,50.2]}}`), http.StatusBadGateway)

	expectStatus(t, ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/features/%d/select", uid), ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/features/%d", uid), ""), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/features/%d", uid), ""), http.StatusNotFound)
}

func TestClickOutsidePointModeIsDiscarded(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/click", `{"lon":1,"lat":1}`)
	expectStatus(t, rr, http.StatusOK)
	if resp := decode(t, rr); resp["discarded"] != true {
		t.Errorf("click in select mode = %v, want discarded", resp)
	}
}

func TestLayerEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.drawRegion(t, "Farm1")
	ts.addRaster(t)

	rr := ts.do(t, http.MethodPatch, "/api/v1/layers/NDVI", `{"visible":false,"opacity":0.4}`)
	expectStatus(t, rr, http.StatusOK)
	if layer := decode(t, rr); layer["visible"] != false || layer["opacity"] != 0.4 {
		t.Errorf("patched layer = %v", layer)
	}
	if spec, ok := ts.surface.Layer("NDVI"); !ok || spec.Layout["visibility"] != "none" {
		t.Errorf("surface layout = %v, want visibility none", spec.Layout)
	}

	expectStatus(t, ts.do(t, http.MethodPatch, "/api/v1/layers/NDVI", `{"opacity":2}`), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodPatch, "/api/v1/layers/missing", `{"visible":true}`), http.StatusNotFound)

	rr = ts.do(t, http.MethodPut, "/api/v1/layers/order", `{"names":["NDVI","Farm1"]}`)
	expectStatus(t, rr, http.StatusOK)
	layers, _ := decode(t, rr)["layers"].([]interface{})
	if first, _ := layers[0].(map[string]interface{}); first["name"] != "NDVI" {
		t.Errorf("bottom layer = %v, want NDVI", first["name"])
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/v1/layers/NDVI/statistics", ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/layers",
		`{"name":"X","function_type":"ndvi","region_name":"Nowhere","tile_url":"t"}`), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/layers", `{not json`), http.StatusBadRequest)

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/v1/layers/NDVI", ""), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/v1/layers/NDVI", ""), http.StatusNotFound)
}

func TestHandleSetMode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMode   domain.DrawingMode
	}{
		{"draw point", `{"mode":"drawPoint"}`, http.StatusOK, domain.ModeDrawPoint},
		{"external polygon", `{"mode":"drawPolygon","external":true}`, http.StatusOK, domain.ModeDrawPolygon},
		{"unknown mode", `{"mode":"lasso"}`, http.StatusBadRequest, domain.ModeSelect},
		{"empty body", ``, http.StatusBadRequest, domain.ModeSelect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rr := ts.do(t, http.MethodPut, "/api/v1/mode", tt.body)
			expectStatus(t, rr, tt.wantStatus)
			if got := ts.session.State().Mode; got != tt.wantMode {
				t.Errorf("mode = %v, want %v", got, tt.wantMode)
			}
		})
	}
}

func TestHandleZoom(t *testing.T) {
	ts := newTestServer(t)
	ts.drawRegion(t, "Farm1")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMoved  bool
	}{
		{"layer", `{"layer":"Farm1"}`, http.StatusOK, true},
		{"repeat inside window", `{"layer":"Farm1"}`, http.StatusOK, false},
		{"unknown layer", `{"layer":"Nope"}`, http.StatusOK, false},
		{"address", `{"address":"Berlin"}`, http.StatusOK, true},
		{"two targets", `{"layer":"Farm1","address":"Berlin"}`, http.StatusBadRequest, false},
		{"no target", `{}`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/v1/zoom", tt.body)
			expectStatus(t, rr, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			if resp := decode(t, rr); resp["moved"] != tt.wantMoved {
				t.Errorf("moved = %v, want %v", resp["moved"], tt.wantMoved)
			}
		})
	}

	if p, ok := ts.camera.Position(); !ok || p.Zoom != 15 {
		t.Errorf("camera = %v, want address zoom 15", p)
	}

	ts.geocoder.err = fmt.Errorf("%w: down", domain.ErrGeocoderUnavailable)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/zoom", `{"address":"Hamburg"}`), http.StatusBadGateway)
}

func TestImportRegions(t *testing.T) {
	ts := newTestServer(t)
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"North"},"geometry":` + farmGeoJSON + `},
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`

	rr := ts.do(t, http.MethodPost, "/api/v1/regions?name=Parcel", body)
	expectStatus(t, rr, http.StatusCreated)
	if resp := decode(t, rr); resp["count"] != float64(2) {
		t.Fatalf("imported = %v", resp)
	}
	north, ok := ts.session.Region("North")
	if !ok || north.Provenance != domain.ProvenanceAttached || north.Origin != "upload" {
		t.Errorf("North = %+v", north)
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/regions?provenance=drawn", body), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/v1/regions", `{"type":"Point","coordinates":[1,1]}`), http.StatusBadRequest)
}

func TestSurfaceReplay(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/v1/surface/snapshot", "")
	expectStatus(t, rr, http.StatusOK)
	snap := decode(t, rr)
	since := uint64(snap["seq"].(float64))

	ts.drawRegion(t, "Farm1")

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/surface/ops?since=%d", since), "")
	expectStatus(t, rr, http.StatusOK)
	batch := decode(t, rr)
	ops, _ := batch["ops"].([]interface{})
	var added []string
	for _, o := range ops {
		op := o.(map[string]interface{})
		if op["op"] == "addLayer" {
			added = append(added, fmt.Sprint(op["id"]))
		}
	}
	farm, _ := ts.session.Layer("Farm1")
	if id := application.SurfaceID(farm); !containsAll(added, id, application.BorderID(id)) {
		t.Errorf("added layers = %v, want Farm1 fill and border", added)
	}
	if batch["reset"] != false {
		t.Error("reset should be false for a fresh journal")
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/v1/surface/ops?since=abc", ""), http.StatusBadRequest)
}

func TestHandleOpenAPI(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/openapi.json", "")
	expectStatus(t, rr, http.StatusOK)
	doc := decode(t, rr)
	if doc["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
	paths, _ := doc["paths"].(map[string]interface{})
	for _, p := range []string{"/api/v1/layers", "/api/v1/roi/cancel", "/api/v1/surface/ops"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("OpenAPI document misses %s", p)
		}
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/docs", ""), http.StatusOK)
	rr = ts.do(t, http.MethodGet, "/", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "maplibre") {
		t.Error("frontend should load MapLibre")
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.config.RateLimit.Enabled = true
	ts.config.RateLimit.Rate = 0.001
	ts.config.RateLimit.Burst = 1
	srv := NewServer(ts.config, Deps{Session: ts.session, Health: ts.health, Logger: ts.logger})

	first := httptest.NewRecorder()
	srv.router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	second := httptest.NewRecorder()
	srv.router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))

	expectStatus(t, first, http.StatusOK)
	expectStatus(t, second, http.StatusTooManyRequests)
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestParseGeometry(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"point", `{"type":"Point","coordinates":[1,2]}`, false},
		{"polygon", farmGeoJSON, false},
		{"feature", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`, false},
		{"feature without geometry", `{"type":"Feature","geometry":null,"properties":{}}`, true},
		{"no type", `{"coordinates":[1,2]}`, true},
		{"not json", `nope`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseGeometry([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("parseGeometry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBoolToStatus(t *testing.T) {
	if boolToStatus(true) != "ok" || boolToStatus(false) != "unhealthy" {
		t.Error("boolToStatus mapping changed")
	}
}

func containsAll(have []string, want ...string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}
