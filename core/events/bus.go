// Package events distributes job lifecycle notifications from the worker
// loops to in-process observers such as the runtime's metrics recorder.
package events

import (
	"context"
	"sync"
)

// Topic names an event stream on the bus.
type Topic string

// Event is implemented by every payload carried on the bus.
type Event interface {
	EventType() string
}

// subscriberBuffer bounds how far an observer may lag before events are
// dropped for it; the worker loop never blocks on a slow observer.
const subscriberBuffer = 16

// Bus fans job lifecycle events out to subscribers. Delivery is
// best-effort per subscriber: a full channel drops the event rather than
// stalling the publisher.
type Bus interface {
	// Subscribe returns a receive channel for the topic and a function
	// that unsubscribes and closes it.
	Subscribe(topic Topic) (<-chan Event, func())

	// Publish delivers the payload to every current subscriber of the
	// topic without blocking.
	Publish(ctx context.Context, topic Topic, payload Event)

	// Close shuts the bus down; all subscriber channels are closed.
	Close()
}

type bus struct {
	mu     sync.RWMutex
	topics map[Topic]map[chan Event]struct{}
	closed bool
}

// New returns an empty bus.
func New() Bus {
	return &bus{topics: make(map[Topic]map[chan Event]struct{})}
}

func (b *bus) Subscribe(topic Topic) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	subs := b.topics[topic]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			if _, exists := subs[ch]; exists {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
		}
	}
	return ch, unsubscribe
}

func (b *bus) Publish(ctx context.Context, topic Topic, payload Event) {
	b.mu.RLock()
	subs := b.topics[topic]
	// Snapshot the channels so no lock is held while sending.
	chs := make([]chan Event, 0, len(subs))
	for ch := range subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- payload:
		case <-ctx.Done():
			return
		default:
			// subscriber lagging; drop
		}
	}
}

func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
}
