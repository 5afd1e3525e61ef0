package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jobrunner/mapcore/internal/ports/output"
)

var _ output.MetricsCollector = (*Collector)(nil)

func newTestCollector() *Collector {
	return NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

func TestCollectorCounters(t *testing.T) {
	c := newTestCollector()

	c.IncQueryCount("ndvi", "success")
	c.IncQueryCount("ndvi", "success")
	c.IncQueryCount("ndvi", "rejected")
	c.IncSurfaceOps("addLayer", 3)
	c.IncSurfaceOps("addLayer", 0)
	c.IncStorageOperations("list", false)
	c.IncGeocodeCount(true)
	c.SetLayers(4)
	c.SetRegions(2)
	c.SetFeatures(1)
	c.ObserveExtractionDuration("ndvi", 2*time.Second)
	c.ObserveStorageDuration("download", time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"successful ndvi queries", testutil.ToFloat64(c.queries.WithLabelValues("ndvi", "success")), 2},
		{"rejected ndvi queries", testutil.ToFloat64(c.queries.WithLabelValues("ndvi", "rejected")), 1},
		{"addLayer ops", testutil.ToFloat64(c.surfaceOps.WithLabelValues("addLayer")), 3},
		{"failed lists", testutil.ToFloat64(c.storageOperations.WithLabelValues("list", "error")), 1},
		{"geocodes", testutil.ToFloat64(c.geocodes.WithLabelValues("success")), 1},
		{"layers", testutil.ToFloat64(c.layers), 4},
		{"regions", testutil.ToFloat64(c.regions), 2},
		{"features", testutil.ToFloat64(c.features), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(c.extractionDuration); n != 1 {
		t.Errorf("extraction histogram series = %d, want 1", n)
	}
}

func TestMiddlewareLabelsRouteTemplate(t *testing.T) {
	c := newTestCollector()
	r := mux.NewRouter()
	r.Use(c.Middleware)
	r.HandleFunc("/api/v1/layers/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, name := range []string{"NDVI", "LST"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/layers/"+name, nil))
	}

	got := testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/layers/{name}", "4xx"))
	if got != 2 {
		t.Errorf("requests for route template = %v, want 2", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := newTestCollector()
	c.SetLayers(7)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_layers 7") {
		t.Errorf("metrics output missing gauge:\n%s", body)
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {204, "2xx"}, {301, "3xx"}, {404, "4xx"}, {502, "5xx"}, {100, "unknown"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.code); got != tt.want {
			t.Errorf("statusClass(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
