package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newIndexServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.txt", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "map" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("# regions\nfields.geojson abc123\n\nfarm.gpkg\nreadme.md\n"))
	})
	mux.HandleFunc("/fields.geojson", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStorageList(t *testing.T) {
	srv := newIndexServer(t)
	storage := NewHTTPStorage(HTTPConfig{BaseURL: srv.URL + "/", Username: "map", Password: "secret"})

	objects, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("objects = %+v, want 2", objects)
	}
	if objects[0].Key != "fields.geojson" || objects[0].ETag != "abc123" {
		t.Errorf("first object = %+v", objects[0])
	}

	anonymous := NewHTTPStorage(HTTPConfig{BaseURL: srv.URL})
	if _, err := anonymous.List(context.Background()); err == nil {
		t.Error("List() without credentials should fail")
	}
}

func TestHTTPStorageDownloadAndExists(t *testing.T) {
	srv := newIndexServer(t)
	storage := NewHTTPStorage(HTTPConfig{BaseURL: srv.URL})
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "fields.geojson")
	if err := storage.Download(ctx, "fields.geojson", dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if data, _ := os.ReadFile(dest); len(data) == 0 {
		t.Error("downloaded file is empty")
	}

	if err := storage.Download(ctx, "missing.gpkg", dest); err == nil {
		t.Error("Download() of a missing file should fail")
	}

	ok, err := storage.Exists(ctx, "fields.geojson")
	if err != nil || !ok {
		t.Errorf("Exists(fields) = %v, %v", ok, err)
	}
	ok, err = storage.Exists(ctx, "missing.gpkg")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
}
