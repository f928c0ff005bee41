package events

import (
	"log/slog"
	"sync"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// DefaultBuffer is the per-subscriber queue depth used by Subscribe when
// the caller passes 0.
const DefaultBuffer = 64

// Bus is an in-process publish/subscribe stream of run lifecycle events.
// Each subscriber owns a bounded queue; a slow subscriber never blocks a
// publisher. When a queue is full the newest event for that subscriber is
// dropped, so a subscriber that has run_started always had the chance to
// see it before any terminal event.
type Bus struct {
	mu        sync.RWMutex
	subs      map[*Subscriber]struct{}
	onDropped func()
	closed    bool
}

// Subscriber is one live observer connection.
type Subscriber struct {
	bus  *Bus
	ch   chan models.AgentEvent
	once sync.Once
}

// NewBus creates an event bus. onDropped, if non-nil, is invoked once per
// event dropped on a full subscriber queue (wired to a metrics counter).
func NewBus(onDropped func()) *Bus {
	return &Bus{
		subs:      make(map[*Subscriber]struct{}),
		onDropped: onDropped,
	}
}

// Subscribe registers a new subscriber with the given queue depth.
func (b *Bus) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscriber{bus: b, ch: make(chan models.AgentEvent, buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Events returns the subscriber's receive channel. It is closed when the
// subscriber or the bus closes.
func (s *Subscriber) Events() <-chan models.AgentEvent {
	return s.ch
}

// Close removes the subscriber from the bus and closes its channel.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
	})
}

// Publish delivers the event to every subscriber without blocking. Events
// published from the same goroutine arrive at a given subscriber in order.
func (b *Bus) Publish(event models.AgentEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			if b.onDropped != nil {
				b.onDropped()
			}
			slog.Warn("Dropped agent event for slow subscriber",
				"type", event.Type, "run_id", event.RunID)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
