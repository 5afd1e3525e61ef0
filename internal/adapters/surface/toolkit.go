package surface

import (
	"slices"
	"sync"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// Overlay layers rendered by the browser drawing toolkit.
const (
	OverlaySource = "draw"
	OverlayFill   = "draw-fill"
	OverlayVertex = "draw-vertex"
)

// Toolkit implements output.DrawingToolkit. Its overlay layers live on the
// surface so that layer ordering accounts for them.
type Toolkit struct {
	mu       sync.Mutex
	mode     domain.DrawingMode
	overlays []string
	journal  *Journal
}

// NewToolkit registers the toolkit overlays on s.
func NewToolkit(s *Surface) (*Toolkit, error) {
	if err := s.AddSource(output.SourceSpec{ID: OverlaySource, Type: "geojson"}); err != nil {
		return nil, err
	}
	overlays := []string{OverlayFill, OverlayVertex}
	types := []output.PrimitiveType{output.PrimitiveFill, output.PrimitiveCircle}
	for i, id := range overlays {
		if err := s.AddLayer(output.LayerSpec{ID: id, Source: OverlaySource, Type: types[i]}, ""); err != nil {
			return nil, err
		}
	}
	return &Toolkit{mode: domain.ModeSelect, overlays: overlays, journal: s.journal}, nil
}

// ChangeMode implements output.DrawingToolkit.
func (t *Toolkit) ChangeMode(mode domain.DrawingMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	t.journal.Append(Op{Kind: OpChangeMode, Mode: mode})
}

// DeleteAll implements output.DrawingToolkit.
func (t *Toolkit) DeleteAll() {
	t.journal.Append(Op{Kind: OpDeleteAll})
}

// OverlayLayerIDs implements output.DrawingToolkit.
func (t *Toolkit) OverlayLayerIDs() []string {
	return slices.Clone(t.overlays)
}

// Mode returns the active toolkit tool.
func (t *Toolkit) Mode() domain.DrawingMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Camera implements output.Camera.
type Camera struct {
	mu      sync.Mutex
	last    *domain.CameraTarget
	journal *Journal
}

// NewCamera creates a camera journaling into j.
func NewCamera(j *Journal) *Camera {
	return &Camera{journal: j}
}

// FlyTo implements output.Camera.
func (c *Camera) FlyTo(target domain.CameraTarget) {
	c.mu.Lock()
	c.last = &target
	c.mu.Unlock()
	c.journal.Append(Op{Kind: OpFlyTo, Target: &target})
}

// Position returns the last camera target.
func (c *Camera) Position() (domain.CameraTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return domain.CameraTarget{}, false
	}
	return *c.last, true
}
