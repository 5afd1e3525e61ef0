package application

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jobrunner/mapcore/internal/domain"
)

// Caches holds per-layer derived state that is dropped with its layer.
type Caches struct {
	// Statistics keyed by raster layer name, shown in the legend.
	Statistics *lru.Cache[string, domain.Statistics]
	// Temporary asset references keyed by raster layer name, replayed on
	// subsequent extractions over the same layer.
	Assets *lru.Cache[string, string]
}

// NewCaches creates caches holding at most size entries each.
func NewCaches(size int) (*Caches, error) {
	if size <= 0 {
		size = 128
	}
	stats, err := lru.New[string, domain.Statistics](size)
	if err != nil {
		return nil, err
	}
	assets, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Caches{Statistics: stats, Assets: assets}, nil
}

// Purge drops everything cached for a layer.
func (c *Caches) Purge(layerName string) {
	c.Statistics.Remove(layerName)
	c.Assets.Remove(layerName)
}
