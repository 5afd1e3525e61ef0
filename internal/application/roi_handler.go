package application

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
)

// ROIHandler drives the region-of-interest lifecycle: idle, drafted, finalized.
// It is not safe for concurrent use; the session serializes access.
type ROIHandler struct {
	layers *LayerStore
	geoms  *GeometryStore
	modes  *ModeController
	bus    *EventBus
	logger *slog.Logger
	rng    *rand.Rand
	now    func() time.Time

	draft *domain.RegionDraft
}

// NewROIHandler creates a region lifecycle handler and registers it to drop
// its draft whenever a draw mode is entered.
func NewROIHandler(layers *LayerStore, geoms *GeometryStore, modes *ModeController, bus *EventBus, logger *slog.Logger) *ROIHandler {
	h := &ROIHandler{
		layers: layers,
		geoms:  geoms,
		modes:  modes,
		bus:    bus,
		logger: logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
	}
	modes.OnEnterDraw(h.discardDraft)
	return h
}

// Open enters the region-drawing context with the polygon tool active.
func (h *ROIHandler) Open() {
	h.modes.SetContext(domain.RegionDrawing{})
	h.modes.SetMode(domain.ModeDrawPolygon)
}

// Draw captures a completed sketch as the draft. The sketch is replaced by
// the draft overlay and the mode returns to select.
func (h *ROIHandler) Draw(g orb.Geometry) (domain.RegionDraft, error) {
	if _, ok := h.modes.Context().(domain.RegionDrawing); !ok {
		return domain.RegionDraft{}, fmt.Errorf("%w: region draw outside region drawing", domain.ErrWrongContext)
	}
	if err := domain.ValidateArea(g); err != nil {
		return domain.RegionDraft{}, err
	}
	mp, _ := domain.ToMultiPolygon(g)

	area := domain.AreaKm2(mp)
	h.draft = &domain.RegionDraft{
		Geometry: mp,
		AreaKm2:  area,
		Badge:    domain.FormatArea(area),
	}
	h.modes.ClearSketch()
	h.modes.SetMode(domain.ModeSelect)

	h.logger.Debug("region drafted", "area_km2", area)
	h.bus.Publish(Event{Resource: ResourceDraft, Action: "created", Message: h.draft.Badge})
	return *h.draft, nil
}

// Draft returns the current draft, or nil when idle.
func (h *ROIHandler) Draft() *domain.RegionDraft {
	return h.draft
}

// Finalize promotes the draft into a named region and its layer, then leaves
// the region-drawing context.
func (h *ROIHandler) Finalize(name string) (domain.RegionOfInterest, error) {
	if h.draft == nil {
		return domain.RegionOfInterest{}, domain.ErrNoDraft
	}
	region, err := h.finalize(name, h.draft.Geometry, domain.ProvenanceDrawn, "")
	if err != nil {
		return domain.RegionOfInterest{}, err
	}

	h.draft = nil
	h.bus.Publish(Event{Resource: ResourceDraft, Action: "deleted"})
	h.modes.SetContext(domain.Querying{})
	h.modes.SetMode(domain.ModeSelect)
	return region, nil
}

// Cancel discards the draft and resets the mode. The region-drawing context
// stays active so the user can draw again.
func (h *ROIHandler) Cancel() {
	h.discardDraft()
	h.modes.ClearSketch()
	h.modes.SetMode(domain.ModeSelect)
}

// Close discards the draft and leaves the region-drawing context.
func (h *ROIHandler) Close() {
	h.Cancel()
	h.modes.SetContext(domain.Querying{})
}

// Import finalizes regions that did not come from an interactive draw.
// Invalid candidates are skipped; their errors are joined.
func (h *ROIHandler) Import(candidates []domain.RegionCandidate, provenance domain.Provenance) ([]domain.RegionOfInterest, error) {
	var (
		created []domain.RegionOfInterest
		errs    []error
	)
	for _, c := range candidates {
		r, err := h.finalize(c.Name, c.Geometry, provenance, c.Origin)
		if err != nil {
			errs = append(errs, fmt.Errorf("region %q: %w", c.Name, err))
			continue
		}
		created = append(created, r)
	}
	return created, errors.Join(errs...)
}

func (h *ROIHandler) finalize(name string, mp orb.MultiPolygon, provenance domain.Provenance, origin string) (domain.RegionOfInterest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RegionOfInterest{}, &domain.ValidationError{
			Field:      "name",
			Value:      name,
			Constraint: "non-empty",
			Message:    "region name is required",
		}
	}
	if err := domain.ValidateArea(mp); err != nil {
		return domain.RegionOfInterest{}, err
	}

	name = domain.UniqueName(name, func(n string) bool {
		return h.layers.Has(n) || h.geoms.HasRegion(n)
	})
	region := domain.RegionOfInterest{
		ID:         uuid.NewString(),
		Name:       name,
		Geometry:   mp,
		Provenance: provenance,
		Color:      domain.RandomRegionColor(h.rng),
		Origin:     origin,
		AreaKm2:    domain.AreaKm2(mp),
		CreatedAt:  h.now(),
	}
	if err := h.geoms.AddRegion(region); err != nil {
		return domain.RegionOfInterest{}, err
	}

	_, err := h.layers.Add(domain.MapLayer{
		Name:                 name,
		Kind:                 domain.LayerKindRegion,
		Visible:              true,
		Opacity:              domain.DefaultOpacity,
		Color:                region.Color,
		VectorType:           domain.VectorPolygon,
		AssociatedRegionName: name,
	})
	if err != nil {
		h.geoms.RemoveRegion(name)
		return domain.RegionOfInterest{}, err
	}

	h.logger.Info("region finalized", "name", name, "provenance", provenance, "area_km2", region.AreaKm2)
	return region, nil
}

func (h *ROIHandler) discardDraft() {
	if h.draft == nil {
		return
	}
	h.draft = nil
	h.bus.Publish(Event{Resource: ResourceDraft, Action: "deleted"})
}
