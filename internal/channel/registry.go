package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dialverse/dialcore/internal/event"
)

// Registry owns every live CallAudioChannel, keyed by call ID. It enforces
// the single-channel invariant: opening a channel for a call ID that already
// has one closes the old channel first, so the most recently opened channel
// is always the live one.
type Registry struct {
	cfg    Config
	dialer Dialer
	bus    *event.Bus

	// onFailure is handed to every channel; see New.
	onFailure func(callID string, err error)

	mu       sync.RWMutex
	channels map[string]*CallAudioChannel
}

// NewRegistry creates an empty registry. All channels it opens share cfg,
// dialer and bus.
func NewRegistry(cfg Config, dialer Dialer, bus *event.Bus, onFailure func(string, error)) *Registry {
	return &Registry{
		cfg:       cfg,
		dialer:    dialer,
		bus:       bus,
		onFailure: onFailure,
		channels:  make(map[string]*CallAudioChannel),
	}
}

// GetOrCreate returns the live channel for callID, opening one if none
// exists. An existing closed channel is replaced.
func (r *Registry) GetOrCreate(ctx context.Context, callID string) (*CallAudioChannel, error) {
	r.mu.RLock()
	existing, ok := r.channels[callID]
	r.mu.RUnlock()
	if ok && existing.State() != StateClosed {
		return existing, nil
	}
	return r.Open(ctx, callID)
}

// Open dials a fresh channel for callID, closing and replacing any previous
// one.
func (r *Registry) Open(ctx context.Context, callID string) (*CallAudioChannel, error) {
	ch := New(callID, r.cfg, r.dialer, r.bus, r.onFailure)
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.channels[callID]
	r.channels[callID] = ch
	r.mu.Unlock()

	if old != nil {
		slog.Info("replacing existing call channel", "call_id", callID)
		_ = old.Close()
	}
	return ch, nil
}

// Get returns the channel for callID, if any.
func (r *Registry) Get(callID string) (*CallAudioChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[callID]
	return ch, ok
}

// Remove closes and forgets the channel for callID. Removing an unknown ID
// is a no-op.
func (r *Registry) Remove(callID string) error {
	r.mu.Lock()
	ch, ok := r.channels[callID]
	delete(r.channels, callID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return ch.Close()
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// MetricsSnapshot returns best-effort per-channel metrics. Channel counters
// are read lock-free, so a busy call never blocks the scrape.
func (r *Registry) MetricsSnapshot() []Metrics {
	r.mu.RLock()
	channels := make([]*CallAudioChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	out := make([]Metrics, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch.Metrics())
	}
	return out
}

// Close tears down every channel. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]*CallAudioChannel)
	r.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}
