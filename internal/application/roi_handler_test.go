package application

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/mapcore/internal/domain"
)

// farm1 has a spherical area of 12.34 km².
var farm1 = orb.Polygon{orb.Ring{
	{10, 50}, {10.05166, 50}, {10.05166, 50.03}, {10, 50.03}, {10, 50},
}}

func TestRegionDraftToFinalizedScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.session.OpenRegionDrawing()
	if st := env.session.State(); st.Context != "regionDrawing" || st.Mode != domain.ModeDrawPolygon {
		t.Fatalf("State() after open = %+v", st)
	}

	out, err := env.session.DrawComplete(ctx, farm1)
	if err != nil {
		t.Fatalf("DrawComplete() error = %v", err)
	}
	if out.Draft == nil || out.Draft.Badge != "12.34 km²" {
		t.Fatalf("draft badge = %+v, want 12.34 km²", out.Draft)
	}
	if len(env.session.Regions()) != 0 {
		t.Fatal("no region may exist before finalization")
	}
	if !env.surface.HasLayer(DraftLayerID) {
		t.Fatal("draft overlay should be on the surface")
	}

	r, err := env.session.FinalizeRegion("  Farm1 ")
	if err != nil {
		t.Fatalf("FinalizeRegion() error = %v", err)
	}
	if r.Name != "Farm1" || r.Provenance != domain.ProvenanceDrawn {
		t.Errorf("region = %+v", r)
	}
	if _, ok := env.session.Region("Farm1"); !ok {
		t.Error("RegionOfInterest Farm1 should exist")
	}
	l, ok := env.session.Layer("Farm1")
	if !ok || l.Kind != domain.LayerKindRegion {
		t.Errorf("MapLayer Farm1 = %+v, %v", l, ok)
	}
	if env.surface.HasLayer(DraftLayerID) {
		t.Error("draft overlay should be gone after finalization")
	}
	if !env.surface.HasLayer(SurfaceID(l)) || !env.surface.HasLayer(BorderID(SurfaceID(l))) {
		t.Error("region fill and border should be rendered")
	}

	st := env.session.State()
	if st.Context != "querying" || st.Mode != domain.ModeSelect || st.HasDraft {
		t.Errorf("State() after finalize = %+v", st)
	}
}

func TestRegionDrawCompleteNeverPersists(t *testing.T) {
	env := newTestEnv(t)
	env.session.OpenRegionDrawing()

	for i := 0; i < 3; i++ {
		if _, err := env.session.DrawComplete(context.Background(), square(10+float64(i), 50, 0.5)); err != nil {
			t.Fatal(err)
		}
		if n := len(env.session.Regions()); n != 0 {
			t.Fatalf("after draw %d: %d regions, want 0", i, n)
		}
	}
}

func TestRegionEscapeDiscardsDraft(t *testing.T) {
	env := newTestEnv(t)
	env.finalizeRegion(t, "Existing", square(0, 0, 1))
	before := env.session.Regions()

	env.session.OpenRegionDrawing()
	if _, err := env.session.DrawComplete(context.Background(), farm1); err != nil {
		t.Fatal(err)
	}
	env.session.CancelRegion()

	if env.surface.HasLayer(DraftLayerID) {
		t.Error("Escape must remove the draft overlay")
	}
	st := env.session.State()
	if st.HasDraft || st.DraftBadge != "" {
		t.Errorf("badge should be cleared, got %+v", st)
	}
	if st.Mode != domain.ModeSelect {
		t.Errorf("mode = %s, want select", st.Mode)
	}
	if st.Context != "regionDrawing" {
		t.Errorf("Escape keeps the region context, got %s", st.Context)
	}
	after := env.session.Regions()
	if len(after) != len(before) || after[0].Name != before[0].Name {
		t.Errorf("regions changed: before %v after %v", before, after)
	}
	if _, err := env.session.FinalizeRegion("Late"); !errors.Is(err, domain.ErrNoDraft) {
		t.Errorf("FinalizeRegion() after Escape error = %v, want ErrNoDraft", err)
	}
}

func TestRegionClosePanelLeavesContext(t *testing.T) {
	env := newTestEnv(t)
	env.session.OpenRegionDrawing()
	_, _ = env.session.DrawComplete(context.Background(), farm1)

	env.session.CloseRegionPanel()
	st := env.session.State()
	if st.Context != "querying" || st.HasDraft {
		t.Errorf("State() = %+v", st)
	}
	if len(env.session.Regions()) != 0 {
		t.Error("closing the panel must not create a region")
	}
}

func TestRegionEnteringDrawModeCancelsDraft(t *testing.T) {
	env := newTestEnv(t)
	env.session.OpenRegionDrawing()
	_, _ = env.session.DrawComplete(context.Background(), farm1)

	env.session.SetMode(domain.ModeDrawPolygon)
	if env.session.State().HasDraft {
		t.Error("entering a draw mode must drop the pending draft")
	}
	if env.surface.HasLayer(DraftLayerID) {
		t.Error("draft overlay should be removed")
	}
}

func TestRegionFinalizeValidation(t *testing.T) {
	env := newTestEnv(t)
	env.session.OpenRegionDrawing()
	_, _ = env.session.DrawComplete(context.Background(), farm1)

	if _, err := env.session.FinalizeRegion("   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("blank name error = %v, want ErrInvalidInput", err)
	}
	if !env.session.State().HasDraft {
		t.Error("a rejected name keeps the draft")
	}
}

func TestRegionFinalizeSuffixesCollisions(t *testing.T) {
	env := newTestEnv(t)
	env.finalizeRegion(t, "Farm1", farm1)
	r := env.finalizeRegion(t, "Farm1", square(11, 50, 0.1))
	if r.Name != "Farm1 (1)" {
		t.Errorf("second region name = %q, want %q", r.Name, "Farm1 (1)")
	}
}

func TestRegionDrawRejectsInvalidGeometry(t *testing.T) {
	env := newTestEnv(t)
	env.session.OpenRegionDrawing()

	_, err := env.session.DrawComplete(context.Background(), orb.Point{10, 50})
	if !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Errorf("DrawComplete(point) error = %v, want ErrInvalidGeometry", err)
	}
	if env.session.State().HasDraft {
		t.Error("invalid geometry must not be drafted")
	}
}

func TestRegionColorsAvoidReservedBand(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 20; i++ {
		r := env.finalizeRegion(t, "R", square(float64(i), 0, 0.5))
		h, err := domain.HueOf(r.Color)
		if err != nil {
			t.Fatal(err)
		}
		if h > domain.ReservedHueStart+1 && h < domain.ReservedHueEnd-1 {
			t.Fatalf("region %s got reserved hue %.1f", r.Name, h)
		}
	}
}

func TestRegionImport(t *testing.T) {
	env := newTestEnv(t)
	env.finalizeRegion(t, "Farm1", farm1)

	created, err := env.session.ImportRegions([]domain.RegionCandidate{
		{Name: "Farm1", Geometry: orb.MultiPolygon{square(12, 50, 0.2)}, Origin: "/import/farms.geojson"},
		{Name: "Broken", Geometry: orb.MultiPolygon{{orb.Ring{{0, 0}, {1, 1}}}}},
		{Name: "Lake", Geometry: orb.MultiPolygon{square(13, 50, 0.2)}},
	}, domain.ProvenanceImported)

	if err == nil {
		t.Error("the broken candidate should be reported")
	}
	if len(created) != 2 {
		t.Fatalf("created %d regions, want 2", len(created))
	}
	if created[0].Name != "Farm1 (1)" || created[0].Provenance != domain.ProvenanceImported {
		t.Errorf("imported region = %+v", created[0])
	}
	if created[0].Origin != "/import/farms.geojson" {
		t.Errorf("origin = %q", created[0].Origin)
	}
	if _, ok := env.session.Layer("Lake"); !ok {
		t.Error("imported regions get a layer")
	}

	if _, err := env.session.ImportRegions(nil, domain.ProvenanceDrawn); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("drawn provenance on import error = %v, want ErrInvalidInput", err)
	}
}
