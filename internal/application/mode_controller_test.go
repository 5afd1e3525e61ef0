package application

import (
	"testing"

	"github.com/jobrunner/mapcore/internal/domain"
)

func newTestModeController() (*ModeController, *fakeToolkit, *fakeSurface) {
	surface := newFakeSurface()
	toolkit := newFakeToolkit(surface)
	return NewModeController(toolkit, surface, NewEventBus(), testLogger()), toolkit, surface
}

func TestModeControllerSetModeUpdatesCursorAndToolkit(t *testing.T) {
	tests := []struct {
		mode   domain.DrawingMode
		cursor domain.Cursor
	}{
		{domain.ModeDrawPoint, domain.CursorPointer},
		{domain.ModeDrawPolygon, domain.CursorCrosshair},
		{domain.ModeSelect, domain.CursorDefault},
	}

	c, toolkit, surface := newTestModeController()
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			c.SetMode(tt.mode)
			if c.Mode() != tt.mode {
				t.Errorf("Mode() = %s, want %s", c.Mode(), tt.mode)
			}
			if surface.cursor != tt.cursor {
				t.Errorf("cursor = %s, want %s", surface.cursor, tt.cursor)
			}
			if last := toolkit.modes[len(toolkit.modes)-1]; last != tt.mode {
				t.Errorf("toolkit mode = %s, want %s", last, tt.mode)
			}
		})
	}
}

func TestModeControllerEnteringDrawClearsSketch(t *testing.T) {
	c, toolkit, _ := newTestModeController()
	hooked := 0
	c.OnEnterDraw(func() { hooked++ })

	c.SetMode(domain.ModeSelect)
	if toolkit.deletes != 0 || hooked != 0 {
		t.Errorf("select must not clear sketches: deletes=%d hook=%d", toolkit.deletes, hooked)
	}

	c.SetMode(domain.ModeDrawPolygon)
	c.SetMode(domain.ModeDrawPoint)
	if toolkit.deletes != 2 || hooked != 2 {
		t.Errorf("each draw mode entry should clear: deletes=%d hook=%d", toolkit.deletes, hooked)
	}
}

func TestModeControllerExternalChangeDoesNotCallToolkit(t *testing.T) {
	c, toolkit, surface := newTestModeController()
	c.SetMode(domain.ModeDrawPoint)
	calls := len(toolkit.modes)

	c.ModeChangedExternally(domain.ModeSelect)
	if c.Mode() != domain.ModeSelect {
		t.Errorf("Mode() = %s, want select", c.Mode())
	}
	if surface.cursor != domain.CursorDefault {
		t.Errorf("cursor = %s, want default", surface.cursor)
	}
	if len(toolkit.modes) != calls {
		t.Error("external change must not call back into the toolkit")
	}
}

func TestModeControllerContext(t *testing.T) {
	c, _, _ := newTestModeController()
	if _, ok := c.Context().(domain.Querying); !ok {
		t.Fatalf("initial context = %s, want querying", c.Context().Name())
	}
	c.SetContext(domain.RegionDrawing{})
	if _, ok := c.Context().(domain.RegionDrawing); !ok {
		t.Errorf("context = %s, want regionDrawing", c.Context().Name())
	}
}
