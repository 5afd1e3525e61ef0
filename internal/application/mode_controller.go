package application

import (
	"log/slog"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// ModeController owns the single active drawing mode and the interaction
// context that decides which lifecycle handler receives draw events.
// It is not safe for concurrent use; the session serializes access.
type ModeController struct {
	toolkit output.DrawingToolkit
	surface output.MapSurface
	bus     *EventBus
	logger  *slog.Logger

	mode    domain.DrawingMode
	context domain.InteractionContext

	// onEnterDraw runs before the toolkit switches into a draw mode.
	onEnterDraw func()
}

// NewModeController creates a controller in select mode and querying context.
func NewModeController(toolkit output.DrawingToolkit, surface output.MapSurface, bus *EventBus, logger *slog.Logger) *ModeController {
	return &ModeController{
		toolkit: toolkit,
		surface: surface,
		bus:     bus,
		logger:  logger,
		mode:    domain.ModeSelect,
		context: domain.Querying{},
	}
}

// OnEnterDraw registers a hook that runs whenever a draw mode is entered.
func (c *ModeController) OnEnterDraw(fn func()) {
	c.onEnterDraw = fn
}

// SetMode switches the active mode, the toolkit tool and the cursor.
// Entering a draw mode discards any unfinished sketch first.
func (c *ModeController) SetMode(mode domain.DrawingMode) {
	if mode.IsDrawing() {
		c.toolkit.DeleteAll()
		if c.onEnterDraw != nil {
			c.onEnterDraw()
		}
	}
	c.toolkit.ChangeMode(mode)
	c.apply(mode)
}

// ModeChangedExternally mirrors a mode change initiated by the toolkit.
func (c *ModeController) ModeChangedExternally(mode domain.DrawingMode) {
	if mode == c.mode {
		return
	}
	c.apply(mode)
}

// ClearSketch discards the toolkit's sketches without changing mode.
func (c *ModeController) ClearSketch() {
	c.toolkit.DeleteAll()
}

// Mode returns the active drawing mode.
func (c *ModeController) Mode() domain.DrawingMode {
	return c.mode
}

// Context returns the active interaction context.
func (c *ModeController) Context() domain.InteractionContext {
	return c.context
}

// SetContext switches the interaction context.
func (c *ModeController) SetContext(ctx domain.InteractionContext) {
	if ctx == c.context {
		return
	}
	c.logger.Debug("interaction context changed", "from", c.context.Name(), "to", ctx.Name())
	c.context = ctx
	c.bus.Publish(Event{Resource: ResourceMode, Action: "context", ID: ctx.Name()})
}

func (c *ModeController) apply(mode domain.DrawingMode) {
	c.surface.SetCursor(mode.Cursor())
	if mode != c.mode {
		c.logger.Debug("drawing mode changed", "from", c.mode, "to", mode)
		c.mode = mode
	}
	c.bus.Publish(Event{Resource: ResourceMode, Action: "updated", ID: string(mode)})
}
