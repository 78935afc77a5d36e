package events

import (
	"context"
	"sync"

	"audience-response-service/internal/domain"
)

// Subscriber handles one event at a time. Handlers run on the publisher's
// goroutine, so they must not block for long.
type Subscriber interface {
	HandleEvent(ctx context.Context, event domain.Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event domain.Event)

func (f SubscriberFunc) HandleEvent(ctx context.Context, event domain.Event) {
	f(ctx, event)
}

// Bus is a synchronous in-process fan-out: Publish returns only after every
// subscriber, in registration order, has processed the event. That ordering is
// what lets cache eviction complete before a mutating call returns to its
// caller.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a subscriber. Registration order is delivery order.
func (b *Bus) Subscribe(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber)
}

// Publish delivers the event to every subscriber before returning.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	subscribers := make([]Subscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.HandleEvent(ctx, event)
	}
}
