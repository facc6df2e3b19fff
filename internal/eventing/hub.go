package eventing

import (
	"context"
	"sync"
)

// Hub is an in-memory pub/sub fan-out for core events. Subscribers get
// buffered channels; a subscriber that falls behind has events dropped
// rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
	closed      bool
}

// NewHub creates a hub with the given per-subscriber buffer size
func NewHub(bufferSize int) *Hub {
	if bufferSize < 1 {
		bufferSize = 16
	}
	return &Hub{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
	}
}

// Publish fans the event out to every subscriber. It never blocks:
// a full subscriber channel drops the event for that subscriber.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned cancel function
// removes the subscription and closes the channel; it is idempotent.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.bufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts the hub down and closes all subscriber channels
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}

// CollectorSink stores published events for tests and debugging
type CollectorSink struct {
	mu     sync.RWMutex
	events []Event
}

// NewCollectorSink creates an empty collector
func NewCollectorSink() *CollectorSink {
	return &CollectorSink{events: make([]Event, 0)}
}

// Publish appends the event
func (s *CollectorSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (s *CollectorSink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsOfType returns published events matching the given type
func (s *CollectorSink) EventsOfType(eventType EventType) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
