package http

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/adapters/surface"
	"github.com/jobrunner/mapcore/internal/application"
	"github.com/jobrunner/mapcore/internal/config"
	"github.com/jobrunner/mapcore/internal/domain"
)

// mockExtractor implements output.Extractor.
type mockExtractor struct {
	mu     sync.Mutex
	result *domain.ExtractionResult
	err    error
	calls  int
}

func (m *mockExtractor) Extract(_ context.Context, _ domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockGeocoder implements output.Geocoder.
type mockGeocoder struct {
	point orb.Point
	err   error
}

func (m *mockGeocoder) Geocode(_ context.Context, _ string) (orb.Point, error) {
	return m.point, m.err
}

// testServer bundles a server over a real session and journaled surface.
type testServer struct {
	*Server
	session   *application.Session
	surface   *surface.Surface
	camera    *surface.Camera
	extractor *mockExtractor
	geocoder  *mockGeocoder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	surf := surface.New(surface.NewJournal(256))
	toolkit, err := surface.NewToolkit(surf)
	if err != nil {
		t.Fatalf("NewToolkit() error = %v", err)
	}
	camera := surface.NewCamera(surf.Journal())
	extractor := &mockExtractor{result: &domain.ExtractionResult{MonoTemporal: map[string]float64{"mean": 0.5}}}
	geocoder := &mockGeocoder{point: orb.Point{13.4, 52.5}}

	session, err := application.NewSession(application.SessionDeps{
		Surface:   surf,
		Toolkit:   toolkit,
		Camera:    camera,
		Extractor: extractor,
		Geocoder:  geocoder,
		Logger:    logger,
		Zoom:      application.DefaultZoomConfig(),
		CacheSize: 16,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080, FrontendEnabled: true}, Deps{
		Session: session,
		Surface: surf,
		Health:  application.NewHealthService(session, nil),
		Logger:  logger,
	})
	return &testServer{
		Server:    srv,
		session:   session,
		surface:   surf,
		camera:    camera,
		extractor: extractor,
		geocoder:  geocoder,
	}
}
