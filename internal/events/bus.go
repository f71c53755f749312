package events

import (
	"sort"
	"sync"
)

// Bus is a typed, synchronous publish/subscribe hub. Handlers run on the
// publisher's goroutine in subscription order.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(T)
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every current subscriber.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(T), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reset drops every subscriber.
func (b *Bus[T]) Reset() {
	b.mu.Lock()
	b.subs = make(map[int]func(T))
	b.mu.Unlock()
}

// Group collects unsubscribe functions so an owner can detach all at once.
type Group struct {
	mu   sync.Mutex
	offs []func()
}

func (g *Group) Add(off func()) {
	g.mu.Lock()
	g.offs = append(g.offs, off)
	g.mu.Unlock()
}

// Close runs every collected unsubscribe function once.
func (g *Group) Close() {
	g.mu.Lock()
	offs := g.offs
	g.offs = nil
	g.mu.Unlock()
	for _, off := range offs {
		off()
	}
}
