package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// surfaceCall records one imperative call on the fake surface.
type surfaceCall struct {
	Op     string
	ID     string
	Before string
	Prop   string
	Value  any
}

// fakeSurface implements output.MapSurface as an ordered in-memory stack.
type fakeSurface struct {
	mu      sync.Mutex
	layers  []string
	specs   map[string]output.LayerSpec
	sources map[string]output.SourceSpec
	paint   map[string]map[string]any
	layout  map[string]map[string]any
	cursor  domain.Cursor
	calls   []surfaceCall
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		specs:   make(map[string]output.LayerSpec),
		sources: make(map[string]output.SourceSpec),
		paint:   make(map[string]map[string]any),
		layout:  make(map[string]map[string]any),
	}
}

func (f *fakeSurface) record(c surfaceCall) {
	f.calls = append(f.calls, c)
}

func (f *fakeSurface) AddSource(spec output.SourceSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[spec.ID]; ok {
		return errors.New("source exists")
	}
	f.sources[spec.ID] = spec
	f.record(surfaceCall{Op: "addSource", ID: spec.ID})
	return nil
}

func (f *fakeSurface) RemoveSource(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.specs {
		if s.Source == id {
			return errors.New("source in use")
		}
	}
	delete(f.sources, id)
	f.record(surfaceCall{Op: "removeSource", ID: id})
	return nil
}

func (f *fakeSurface) HasSource(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sources[id]
	return ok
}

func (f *fakeSurface) AddLayer(spec output.LayerSpec, beforeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.Contains(f.layers, spec.ID) {
		return errors.New("layer exists")
	}
	f.specs[spec.ID] = spec
	f.paint[spec.ID] = spec.Paint
	f.layout[spec.ID] = spec.Layout
	f.layers = f.insert(f.layers, spec.ID, beforeID)
	f.record(surfaceCall{Op: "addLayer", ID: spec.ID, Before: beforeID})
	return nil
}

func (f *fakeSurface) RemoveLayer(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.layers, id)
	if i < 0 {
		return errors.New("no such layer")
	}
	f.layers = slices.Delete(f.layers, i, i+1)
	delete(f.specs, id)
	delete(f.paint, id)
	delete(f.layout, id)
	f.record(surfaceCall{Op: "removeLayer", ID: id})
	return nil
}

func (f *fakeSurface) HasLayer(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.layers, id)
}

func (f *fakeSurface) SetPaintProperty(id, name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.layers, id) {
		return errors.New("no such layer")
	}
	if f.paint[id] == nil {
		f.paint[id] = make(map[string]any)
	}
	f.paint[id][name] = value
	f.record(surfaceCall{Op: "setPaintProperty", ID: id, Prop: name, Value: value})
	return nil
}

func (f *fakeSurface) SetLayoutProperty(id, name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.layers, id) {
		return errors.New("no such layer")
	}
	if f.layout[id] == nil {
		f.layout[id] = make(map[string]any)
	}
	f.layout[id][name] = value
	f.record(surfaceCall{Op: "setLayoutProperty", ID: id, Prop: name, Value: value})
	return nil
}

func (f *fakeSurface) MoveLayer(id, beforeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.layers, id)
	if i < 0 {
		return errors.New("no such layer")
	}
	f.layers = slices.Delete(f.layers, i, i+1)
	f.layers = f.insert(f.layers, id, beforeID)
	f.record(surfaceCall{Op: "moveLayer", ID: id, Before: beforeID})
	return nil
}

func (f *fakeSurface) insert(ids []string, id, before string) []string {
	if at := slices.Index(ids, before); before != "" && at >= 0 {
		return slices.Insert(ids, at, id)
	}
	return append(ids, id)
}

func (f *fakeSurface) LayerIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.layers)
}

func (f *fakeSurface) SetCursor(c domain.Cursor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = c
}

// resetCalls forgets the recorded calls.
func (f *fakeSurface) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// callsOf returns the recorded calls of one kind.
func (f *fakeSurface) callsOf(op string) []surfaceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []surfaceCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// fakeToolkit implements output.DrawingToolkit and owns two overlay layers
// on the surface, like a real drawing library.
type fakeToolkit struct {
	modes     []domain.DrawingMode
	deletes   int
	overlays  []string
	surface   *fakeSurface
	sketching bool
}

func newFakeToolkit(surface *fakeSurface) *fakeToolkit {
	tk := &fakeToolkit{
		overlays: []string{"draw-fill", "draw-vertex"},
		surface:  surface,
	}
	for _, id := range tk.overlays {
		_ = surface.AddLayer(output.LayerSpec{ID: id, Source: "draw", Type: output.PrimitiveLine}, "")
	}
	surface.resetCalls()
	return tk
}

func (t *fakeToolkit) ChangeMode(mode domain.DrawingMode) {
	t.modes = append(t.modes, mode)
	t.sketching = mode.IsDrawing()
}

func (t *fakeToolkit) DeleteAll() {
	t.deletes++
	t.sketching = false
}

func (t *fakeToolkit) OverlayLayerIDs() []string {
	return t.overlays
}

// fakeCamera implements output.Camera.
type fakeCamera struct {
	moves []domain.CameraTarget
}

func (c *fakeCamera) FlyTo(target domain.CameraTarget) {
	c.moves = append(c.moves, target)
}

// mockExtractor implements output.Extractor. during runs while the session
// lock is released.
type mockExtractor struct {
	result   *domain.ExtractionResult
	err      error
	during   func()
	requests []domain.ExtractionRequest
}

func (m *mockExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	m.requests = append(m.requests, req)
	if m.during != nil {
		m.during()
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.ExtractionResult{MonoTemporal: map[string]float64{"mean": 0.42}}, nil
}

// mockGeocoder implements output.Geocoder.
type mockGeocoder struct {
	point orb.Point
	err   error
	calls int
}

func (m *mockGeocoder) Geocode(_ context.Context, _ string) (orb.Point, error) {
	m.calls++
	return m.point, m.err
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	objects     []output.StorageObject
	files       map[string][]byte
	downloadErr error
	listErr     error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.objects), nil
}

func (m *mockStorage) Download(_ context.Context, key, dest string) error {
	if m.downloadErr != nil {
		return m.downloadErr
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, m.files[key], 0o600)
}

func (m *mockStorage) GetReader(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, nil
}

func (m *mockStorage) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// mockReader implements output.RegionReader. Every supported file yields
// the regions registered under its base name.
type mockReader struct {
	regions map[string][]domain.RegionCandidate
	err     error
}

func (m *mockReader) Supports(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".geojson" || ext == ".gpkg"
}

func (m *mockReader) ReadRegions(_ context.Context, path string) ([]domain.RegionCandidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(m.regions[filepath.Base(path)]), nil
}

// square returns a closed lon/lat square with its lower-left corner at (x, y).
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

// testEnv is a session wired to fakes.
type testEnv struct {
	session   *Session
	surface   *fakeSurface
	toolkit   *fakeToolkit
	camera    *fakeCamera
	extractor *mockExtractor
	geocoder  *mockGeocoder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	surface := newFakeSurface()
	env := &testEnv{
		surface:   surface,
		toolkit:   newFakeToolkit(surface),
		camera:    &fakeCamera{},
		extractor: &mockExtractor{},
		geocoder:  &mockGeocoder{point: orb.Point{13.4, 52.5}},
	}
	s, err := NewSession(SessionDeps{
		Surface:   env.surface,
		Toolkit:   env.toolkit,
		Camera:    env.camera,
		Extractor: env.extractor,
		Geocoder:  env.geocoder,
		Metrics:   &output.NoOpMetrics{},
		Logger:    testLogger(),
		Zoom:      DefaultZoomConfig(),
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	env.session = s
	return env
}

// surfaceID returns the surface ID of a stored layer.
func (e *testEnv) surfaceID(t *testing.T, name string) string {
	t.Helper()
	l, ok := e.session.Layer(name)
	if !ok {
		t.Fatalf("layer %s not stored", name)
	}
	return SurfaceID(l)
}

// finalizeRegion draws and finalizes a region through the interactive path.
func (e *testEnv) finalizeRegion(t *testing.T, name string, g orb.Polygon) domain.RegionOfInterest {
	t.Helper()
	e.session.OpenRegionDrawing()
	if _, err := e.session.DrawComplete(context.Background(), g); err != nil {
		t.Fatalf("DrawComplete() error = %v", err)
	}
	r, err := e.session.FinalizeRegion(name)
	if err != nil {
		t.Fatalf("FinalizeRegion() error = %v", err)
	}
	return r
}
