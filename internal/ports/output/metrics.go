package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncQueryCount counts a query by function type and outcome
	// (success, rejected, failed).
	IncQueryCount(functionType, status string)

	// ObserveExtractionDuration records the duration of an extraction call.
	ObserveExtractionDuration(functionType string, duration time.Duration)

	// SetLayers sets the number of layers in the store.
	SetLayers(count int)

	// SetRegions sets the number of finalized regions.
	SetRegions(count int)

	// SetFeatures sets the number of drawn query features.
	SetFeatures(count int)

	// IncSurfaceOps counts imperative surface operations by kind.
	IncSurfaceOps(op string, count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// IncGeocodeCount counts geocoder lookups.
	IncGeocodeCount(success bool)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncQueryCount implements MetricsCollector.
func (n *NoOpMetrics) IncQueryCount(_, _ string) {}

// ObserveExtractionDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveExtractionDuration(_ string, _ time.Duration) {}

// SetLayers implements MetricsCollector.
func (n *NoOpMetrics) SetLayers(_ int) {}

// SetRegions implements MetricsCollector.
func (n *NoOpMetrics) SetRegions(_ int) {}

// SetFeatures implements MetricsCollector.
func (n *NoOpMetrics) SetFeatures(_ int) {}

// IncSurfaceOps implements MetricsCollector.
func (n *NoOpMetrics) IncSurfaceOps(_ string, _ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// IncGeocodeCount implements MetricsCollector.
func (n *NoOpMetrics) IncGeocodeCount(_ bool) {}
