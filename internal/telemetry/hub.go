package telemetry

import "sync"

const subscriberBuffer = 16

// Hub fans events out to in-process subscribers. Slow subscribers have events
// dropped rather than blocking the broadcaster.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	latest map[string]Event
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[int]chan Event),
		latest: make(map[string]Event),
	}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Broadcast implements Publisher. It never blocks: events to full subscriber
// channels are dropped.
func (h *Hub) Broadcast(event string, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[e.MissionID] = e
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Snapshot returns the most recent event per mission.
func (h *Hub) Snapshot() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, 0, len(h.latest))
	for _, e := range h.latest {
		out = append(out, e)
	}
	return out
}
