package bus

import (
	"fmt"
	"sync"

	"github.com/gehhilfe/brokerflux/core"
)

// LocalBus fans messages out to in-process subscribers, synchronously and
// in subscription order. It is safe for concurrent use.
type LocalBus struct {
	mu            sync.RWMutex
	nextId        int
	subscriptions map[string][]localSubscription
}

type localSubscription struct {
	id      int
	handler core.Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subscriptions: make(map[string][]localSubscription),
	}
}

// Subscribe appends handler to the topic's subscriber list, creating the
// list if absent. Earlier subscribers of the topic are never displaced.
func (b *LocalBus) Subscribe(topic string, handler core.Handler) (core.Unsubscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextId
	b.nextId++
	b.subscriptions[topic] = append(b.subscriptions[topic], localSubscription{
		id:      id,
		handler: handler,
	})

	return core.UnsubscribeFunc(func() error {
		return b.unsubscribe(topic, id)
	}), nil
}

// Publish invokes every subscriber of topic in subscription order on the
// caller's goroutine. A topic without subscribers is an error. The first
// handler error aborts delivery to the remaining subscribers.
func (b *LocalBus) Publish(topic string, message []byte) error {
	b.mu.RLock()
	subscriptions := make([]localSubscription, len(b.subscriptions[topic]))
	copy(subscriptions, b.subscriptions[topic])
	b.mu.RUnlock()

	if len(subscriptions) == 0 {
		return fmt.Errorf("%w: %s", core.ErrNoLocalSubscription, topic)
	}

	for _, sub := range subscriptions {
		if err := sub.handler(message, core.Metadata{}); err != nil {
			return &core.HandlerError{Topic: topic, Err: err}
		}
	}
	return nil
}

func (b *LocalBus) unsubscribe(topic string, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriptions := b.subscriptions[topic]
	for i, sub := range subscriptions {
		if sub.id == id {
			b.subscriptions[topic] = append(subscriptions[:i], subscriptions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", core.ErrNoLocalSubscription, topic)
}
