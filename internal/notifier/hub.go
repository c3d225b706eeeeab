package notifier

import (
	"context"
	"sync"

	"auction-engine/utils"
)

const defaultSubscriberBuffer = 32

// Hub is an in-process pub/sub. Slow subscribers lose events rather than
// block publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	buffer int
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[int]chan Event),
		buffer: defaultSubscriberBuffer,
	}
}

// Subscribe returns a channel receiving events of topic and a function that
// ends the subscription and closes the channel.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan Event)
	}
	h.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[topic], id)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(_ context.Context, topic string, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[topic] {
		select {
		case ch <- event:
		default:
			utils.Warn("subscriber buffer full, dropping event", map[string]any{
				"topic":    topic,
				"event_id": event.EventID,
			})
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
