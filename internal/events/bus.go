// Package events is the publish/subscribe channel the overlay engine and
// the viewer widget talk through. Delivery is synchronous and
// fire-and-forget: Publish returns once every handler has run.
package events

import (
	"log/slog"
	"sync"
)

// Handler receives the payload published on a topic.
type Handler func(payload any)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an injectable in-process event bus.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscription
	log    *slog.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string][]subscription),
		log:    slog.Default(),
	}
}

// Subscribe registers h for topic and returns a function removing it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			kept := make([]subscription, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			kept = append(kept, subs[i+1:]...)
			if len(kept) == 0 {
				delete(b.topics, topic)
			} else {
				b.topics[topic] = kept
			}
			return
		}
	}
}

// Publish delivers payload to every handler subscribed to topic at the
// time of the call. Handlers may subscribe or unsubscribe while running.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := b.topics[topic]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	b.log.Debug("publish", "topic", topic, "handlers", len(handlers))
	for _, h := range handlers {
		h(payload)
	}
}

// Subscribers returns the number of handlers currently registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
