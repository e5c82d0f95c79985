package event

import (
	"sync"

	"github.com/google/uuid"
)

type InMemoryBus struct {
	mu          sync.RWMutex
	listeners   map[string]Listener
	subscribers map[string]chan Event
	bufferSize  int
}

func NewBus() *InMemoryBus {
	return &InMemoryBus{
		listeners:   make(map[string]Listener),
		subscribers: make(map[string]chan Event),
		bufferSize:  32,
	}
}

// Publish delivers e to every listener, then offers it to every channel
// subscriber. Channel sends never block: a full subscriber misses e, which
// is acceptable because each event carries the whole snapshot.
func (b *InMemoryBus) Publish(e Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}

func (b *InMemoryBus) Listen(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *InMemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, exists := b.subscribers[id]; exists {
			close(ch)
			delete(b.subscribers, id)
		}
	}

	return ch, unsubscribe
}
