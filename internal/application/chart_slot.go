package application

import (
	"sort"
	"sync"

	"github.com/jobrunner/mapcore/internal/domain"
)

// ChartSlot holds the chart-ready payload per analysis function type.
type ChartSlot struct {
	mu       sync.RWMutex
	payloads map[string]domain.ChartPayload
	bus      *EventBus
}

// NewChartSlot creates an empty chart slot.
func NewChartSlot(bus *EventBus) *ChartSlot {
	return &ChartSlot{
		payloads: make(map[string]domain.ChartPayload),
		bus:      bus,
	}
}

// Set publishes a payload, replacing any payload of the same function type.
func (c *ChartSlot) Set(p domain.ChartPayload) {
	c.mu.Lock()
	c.payloads[p.FunctionType] = p
	c.mu.Unlock()

	c.bus.Publish(Event{Resource: ResourceChart, Action: "updated", ID: p.FunctionType})
}

// Get returns the payload for a function type.
func (c *ChartSlot) Get(functionType string) (domain.ChartPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.payloads[functionType]
	return p, ok
}

// ClearFeature drops every payload produced by the given feature.
func (c *ChartSlot) ClearFeature(uid uint64) {
	c.mu.Lock()
	var cleared []string
	for ft, p := range c.payloads {
		if p.FeatureUID == uid {
			delete(c.payloads, ft)
			cleared = append(cleared, ft)
		}
	}
	c.mu.Unlock()

	for _, ft := range cleared {
		c.bus.Publish(Event{Resource: ResourceChart, Action: "deleted", ID: ft})
	}
}

// All returns the payloads sorted by function type.
func (c *ChartSlot) All() []domain.ChartPayload {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.ChartPayload, 0, len(c.payloads))
	for _, p := range c.payloads {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FunctionType < out[j].FunctionType })
	return out
}
