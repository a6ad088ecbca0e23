// Package broadcast fans a stream of state values out to subscribers.
// Slow subscribers skip intermediate values and always see the latest one.
package broadcast

import "sync"

// Broadcaster publishes values of T to any number of subscribers
type Broadcaster[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
	closed bool
}

// New creates an empty broadcaster
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// Subscribe returns a channel receiving published values and a cancel function.
// The channel is closed by cancel or Close.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish hands v to every subscriber, replacing any value it has not read yet
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
