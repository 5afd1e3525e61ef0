package domain

import "fmt"

// DrawingMode is the active tool of the drawing toolkit.
type DrawingMode string

// Drawing modes.
const (
	ModeSelect      DrawingMode = "select"
	ModeDrawPoint   DrawingMode = "drawPoint"
	ModeDrawPolygon DrawingMode = "drawPolygon"
)

// Cursor is the map canvas cursor affordance.
type Cursor string

// Cursors per drawing mode.
const (
	CursorDefault   Cursor = "default"
	CursorPointer   Cursor = "pointer"
	CursorCrosshair Cursor = "crosshair"
)

// ParseDrawingMode validates a mode name from the outside world.
func ParseDrawingMode(s string) (DrawingMode, error) {
	switch m := DrawingMode(s); m {
	case ModeSelect, ModeDrawPoint, ModeDrawPolygon:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Cursor returns the cursor shown while the mode is active.
func (m DrawingMode) Cursor() Cursor {
	switch m {
	case ModeDrawPoint:
		return CursorPointer
	case ModeDrawPolygon:
		return CursorCrosshair
	default:
		return CursorDefault
	}
}

// IsDrawing returns true for the modes that capture a sketch.
func (m DrawingMode) IsDrawing() bool {
	return m == ModeDrawPoint || m == ModeDrawPolygon
}

// InteractionContext selects which lifecycle handler receives draw-complete
// events. It is a closed set: RegionDrawing or Querying.
type InteractionContext interface {
	interactionContext()
	Name() string
}

// RegionDrawing routes draw-complete events to the region lifecycle.
type RegionDrawing struct{}

// Querying routes draw-complete and click events to the query lifecycle.
type Querying struct{}

func (RegionDrawing) interactionContext() {}
func (Querying) interactionContext()      {}

// Name implements InteractionContext.
func (RegionDrawing) Name() string { return "regionDrawing" }

// Name implements InteractionContext.
func (Querying) Name() string { return "querying" }
