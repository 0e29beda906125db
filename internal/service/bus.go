package service

import (
	"slices"
	"sync"
	"sync/atomic"
)

// ResourceFeatures names sighting changes on the bus.
const ResourceFeatures = "features"

// Action is what happened to a feature.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event is one applied edit.
type Event struct {
	Resource string
	Action   Action
	ID       int64 // object id
}

type subscription struct {
	resources []string // empty: everything
}

func (s subscription) wants(e Event) bool {
	return len(s.resources) == 0 || slices.Contains(s.resources, e.Resource)
}

// EventBus fans edit events out to subscribers. Delivery never blocks the
// publisher; a full subscriber misses the event and it is counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[chan Event]subscription
	dropped atomic.Int64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]subscription)}
}

// Publish delivers e to every subscriber interested in its resource.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a buffered channel receiving events for resources, or
// for every resource when none are named.
func (b *EventBus) Subscribe(resources ...string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = subscription{resources: resources}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }
