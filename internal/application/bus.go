package application

import "sync"

// Event resources.
const (
	ResourceLayers       = "layers"
	ResourceRegions      = "regions"
	ResourceFeatures     = "features"
	ResourceChart        = "chart"
	ResourceMode         = "mode"
	ResourceDraft        = "draft"
	ResourceLoading      = "loading"
	ResourceSurface      = "surface"
	ResourceCamera       = "camera"
	ResourceNotification = "notification"
)

// Event represents a session state change.
type Event struct {
	Resource string // e.g. "layers"
	Action   string // "created", "updated", "deleted", ...
	ID       string // resource name or ID
	Message  string // user-facing text for notifications
}

// EventBus is a simple fan-out pub/sub for session change events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
