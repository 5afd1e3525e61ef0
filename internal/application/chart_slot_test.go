package application

import (
	"testing"

	"github.com/jobrunner/mapcore/internal/domain"
)

func TestChartSlotReplacesPerFunctionType(t *testing.T) {
	slot := NewChartSlot(nil)
	slot.Set(domain.ChartPayload{FunctionType: "ndvi", FeatureUID: 1})
	slot.Set(domain.ChartPayload{FunctionType: "lst", FeatureUID: 1})
	slot.Set(domain.ChartPayload{FunctionType: "ndvi", FeatureUID: 2})

	all := slot.All()
	if len(all) != 2 || all[0].FunctionType != "lst" || all[1].FunctionType != "ndvi" {
		t.Fatalf("All() = %+v", all)
	}
	if p, _ := slot.Get("ndvi"); p.FeatureUID != 2 {
		t.Errorf("ndvi payload from feature %d, want 2", p.FeatureUID)
	}

	slot.ClearFeature(1)
	if _, ok := slot.Get("lst"); ok {
		t.Error("lst payload of feature 1 should be cleared")
	}
	if _, ok := slot.Get("ndvi"); !ok {
		t.Error("ndvi payload of feature 2 should stay")
	}
}
