package application

import (
	"context"

	"github.com/jobrunner/mapcore/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	session  *Session
	registry *RegionRegistry
}

// NewHealthService creates a new health service.
func NewHealthService(session *Session, registry *RegionRegistry) *HealthService {
	return &HealthService{
		session:  session,
		registry: registry,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true once the session restore has finished.
func (s *HealthService) IsReady(_ context.Context) bool {
	return s.registry == nil || s.registry.Restored()
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	regions, features := s.session.geoms.Counts()

	components := map[string]string{
		"session": "ok",
		"restore": "pending",
	}
	if s.IsReady(ctx) {
		components["restore"] = "ok"
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		Layers:     s.session.layers.Len(),
		Regions:    regions,
		Features:   features,
		Restored:   s.IsReady(ctx),
		Components: components,
	}
}
