package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrLayerNotFound         = fmt.Errorf("layer: %w", ErrNotFound)
	ErrRegionNotFound        = fmt.Errorf("region: %w", ErrNotFound)
	ErrFeatureNotFound       = fmt.Errorf("drawn feature: %w", ErrNotFound)
	ErrNoDraft               = fmt.Errorf("region draft: %w", ErrNotFound)
	ErrNoActiveRaster        = fmt.Errorf("active raster layer: %w", ErrNotFound)
	ErrInvalidGeometry       = fmt.Errorf("geometry: %w", ErrInvalidInput)
	ErrInvalidMode           = fmt.Errorf("drawing mode: %w", ErrInvalidInput)
	ErrWrongContext          = fmt.Errorf("interaction context: %w", ErrConflict)
	ErrQueryInFlight         = fmt.Errorf("query already in flight: %w", ErrConflict)
	ErrStaleResult           = fmt.Errorf("query result for removed layer: %w", ErrConflict)
	ErrRegionExists          = fmt.Errorf("region: %w", ErrConflict)
	ErrUnsupportedProjection = fmt.Errorf("projection: %w", ErrUnsupported)
	ErrExtractionUnavailable = fmt.Errorf("extraction pipeline: %w", ErrUnavailable)
	ErrGeocoderUnavailable   = fmt.Errorf("geocoder: %w", ErrUnavailable)
	ErrStorageUnavailable    = fmt.Errorf("storage: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// GeometryValidationError is returned when a drawn query geometry does not
// intersect the region bound to the queried raster layer.
type GeometryValidationError struct {
	Region string       // Bound region name
	Layer  string       // Raster layer the query targeted
	Kind   GeometryKind // Kind of the rejected geometry
}

// Error implements the error interface.
func (e *GeometryValidationError) Error() string {
	return fmt.Sprintf("%s query on layer %s does not intersect region %s",
		e.Kind, e.Layer, e.Region)
}

// Unwrap returns the underlying error type.
func (e *GeometryValidationError) Unwrap() error {
	return ErrInvalidGeometry
}

// ExtractionError represents a failed call to the extraction pipeline.
type ExtractionError struct {
	FunctionType string // Analysis function that was queried
	Layer        string // Source raster layer
	Err          error  // Underlying error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("extraction error for %s on layer %s: %v",
			e.FunctionType, e.Layer, e.Err)
	}
	return fmt.Sprintf("extraction error for %s: %v", e.FunctionType, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// SurfaceError represents a failed imperative call on the map surface.
type SurfaceError struct {
	Op      string // Operation kind (addLayer, moveLayer, ...)
	LayerID string // Primitive the operation targeted
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *SurfaceError) Error() string {
	return fmt.Sprintf("surface %s on %s: %v", e.Op, e.LayerID, e.Err)
}

// Unwrap returns the underlying error.
func (e *SurfaceError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
