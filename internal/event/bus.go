package event

import (
	"log/slog"
	"sync"
	"time"
)

// Handler consumes pipeline events. Handlers are invoked synchronously on the
// publisher's goroutine and must not block; slow consumers should hand off to
// their own queue.
type Handler func(Event)

// Bus fans events out to subscribers in subscription order.
//
// Publish is safe for concurrent use; events published by a single goroutine
// are delivered in publish order. Events from different goroutines carry no
// relative ordering guarantee, matching the per-call ordering contract (each
// call publishes its events from its own session goroutine).
type Bus struct {
	mu   sync.RWMutex
	subs []Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for all subsequent events. There is no unsubscribe:
// subscribers (metric sinks, the event store recorder) live for the process.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, h)
}

// Publish delivers ev to every subscriber. A zero At is stamped with the
// current time.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, h := range subs {
		h(ev)
	}

	slog.Debug("event published",
		"type", ev.Type,
		"call_id", ev.CallID,
	)
}
