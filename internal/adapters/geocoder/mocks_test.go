package geocoder

import (
	"sync/atomic"
	"time"
)

type countingMetrics struct {
	ok     atomic.Int32
	failed atomic.Int32
}

func (m *countingMetrics) IncQueryCount(_, _ string)                           {}
func (m *countingMetrics) ObserveExtractionDuration(_ string, _ time.Duration) {}
func (m *countingMetrics) SetLayers(_ int)                                     {}
func (m *countingMetrics) SetRegions(_ int)                                    {}
func (m *countingMetrics) SetFeatures(_ int)                                   {}
func (m *countingMetrics) IncSurfaceOps(_ string, _ int)                       {}
func (m *countingMetrics) IncStorageOperations(_ string, _ bool)               {}
func (m *countingMetrics) ObserveStorageDuration(_ string, _ time.Duration)    {}

func (m *countingMetrics) IncGeocodeCount(success bool) {
	if success {
		m.ok.Add(1)
		return
	}
	m.failed.Add(1)
}
