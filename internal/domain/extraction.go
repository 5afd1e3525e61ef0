package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// ExtractionRequest is sent to the remote extraction pipeline.
type ExtractionRequest struct {
	FunctionType      string       // Analysis function of the queried raster
	Geometry          orb.Geometry // Drawn point or polygon
	AggregationMethod string       // mean, median, ...
	DateRanges        []DateRange  // Analysis period(s)
	TemporaryAssetRef string       // Cached intermediate asset, if any
}

// ExtractionResult is the typed result of an extraction call.
// Exactly which fields are set depends on the analysis function.
type ExtractionResult struct {
	MonoTemporal      map[string]float64   `json:"mono_temporal,omitempty"`
	TimeSeries        []TimeSeriesPoint    `json:"time_series,omitempty"`
	BiTemporal        *BiTemporalHistogram `json:"bi_temporal,omitempty"`
	TemporaryAssetRef string               `json:"temporary_asset,omitempty"`
}

// IsEmpty returns true if the pipeline returned no values.
func (r *ExtractionResult) IsEmpty() bool {
	return r == nil || (len(r.MonoTemporal) == 0 && len(r.TimeSeries) == 0 && r.BiTemporal == nil)
}

// TimeSeriesPoint is one sample of a time-series extraction.
type TimeSeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// BiTemporalHistogram holds two value distributions for a change analysis.
type BiTemporalHistogram struct {
	Bins   []float64 `json:"bins"`
	Before []float64 `json:"before"`
	After  []float64 `json:"after"`
}

// ChartPayload is the chart-ready slot content for one function type.
type ChartPayload struct {
	FunctionType string            `json:"function_type"`
	FeatureUID   uint64            `json:"feature_uid"`
	LayerName    string            `json:"layer_name"`
	Result       *ExtractionResult `json:"result"`
}
