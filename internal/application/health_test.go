package application

import (
	"context"
	"testing"

	"github.com/jobrunner/mapcore/internal/ports/input"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

func TestHealthServiceIsHealthy(t *testing.T) {
	env := newTestEnv(t)
	service := NewHealthService(env.session, nil)

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceIsReady(t *testing.T) {
	env := newTestEnv(t)
	storage := &mockStorage{objects: []output.StorageObject{{Key: "farm.gpkg"}}}
	registry := NewRegionRegistry(env.session, fieldsReader(), storage, &output.NoOpMetrics{}, testLogger(), t.TempDir())

	tests := []struct {
		name    string
		service *HealthService
		restore bool
		want    bool
	}{
		{name: "no restore source", service: NewHealthService(env.session, nil), want: true},
		{name: "restore pending", service: NewHealthService(env.session, registry), want: false},
		{name: "restore done", service: NewHealthService(env.session, registry), restore: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.restore {
				if err := registry.Restore(context.Background()); err != nil {
					t.Fatal(err)
				}
			}
			if got := tt.service.IsReady(context.Background()); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthServiceGetHealthDetails(t *testing.T) {
	env := newQueryEnv(t)
	service := NewHealthService(env.session, nil)

	var _ input.HealthChecker = service
	details := service.GetHealthDetails(context.Background())

	if !details.Healthy || !details.Ready || !details.Restored {
		t.Errorf("details = %+v, want healthy and ready", details)
	}
	if details.Layers != 2 || details.Regions != 1 || details.Features != 0 {
		t.Errorf("counts = %d layers, %d regions, %d features", details.Layers, details.Regions, details.Features)
	}
	if details.Components["restore"] != "ok" {
		t.Errorf("components = %v", details.Components)
	}
}
