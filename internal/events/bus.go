package events

import (
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 256

// Bus is a non-blocking pub/sub event bus.
// Workers publish from their own goroutines, so Publish never waits on a slow subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	bufferSize  int
	closed      bool
	dropped     atomic.Uint64
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe returns a channel that receives events.
// Subscribing to a closed bus returns an already closed channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel and closes it
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub == ch {
			delete(b.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Publish sends an event to all subscribers.
// If a subscriber's buffer is full the event is dropped for that subscriber only.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
