package fetch

import "sync"

// EventKind names a lifecycle point of an operation.
type EventKind string

// Lifecycle events.
const (
	EventStart    EventKind = "start"
	EventResponse EventKind = "response"
	EventStop     EventKind = "stop"
	EventFinish   EventKind = "finish"
)

// Event is a fire-and-forget lifecycle notification.
type Event struct {
	Kind        EventKind
	OperationID string
	URL         string
	State       State
}

// Observer receives lifecycle events.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Bus fans events out to registered observers.
type Bus struct {
	mu        sync.RWMutex
	next      uint64
	observers map[uint64]Observer
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{observers: make(map[uint64]Observer)}
}

// Register adds o to the bus and returns a function that removes it again.
func (b *Bus) Register(o Observer) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.observers[id] = o
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
		})
	}
}

// Observe delivers e to every registered observer.
func (b *Bus) Observe(e Event) {
	b.mu.RLock()
	observers := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.RUnlock()

	for _, o := range observers {
		o.Observe(e)
	}
}
