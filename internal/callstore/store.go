// Package callstore persists call events for the analytics collaborator.
//
// The pipeline treats persistence as fire-and-forget: the Recorder subscribes
// to the event bus, queues events and writes them from its own goroutine, so
// a slow or absent store never blocks audio processing.
package callstore

import (
	"context"
	"time"

	"github.com/dialverse/dialcore/internal/event"
)

// Record is one persisted call event.
type Record struct {
	CallID string
	Type   string
	At     time.Time

	// Detail carries the event's type-specific fields.
	Detail map[string]any
}

// Store persists call events. Implementations must be safe for concurrent
// use.
type Store interface {
	// RecordEvent appends one event.
	RecordEvent(ctx context.Context, rec Record) error

	// EventsForCall returns a call's events in occurrence order, newest
	// last, up to limit (0 means no limit).
	EventsForCall(ctx context.Context, callID string, limit int) ([]Record, error)

	// Close releases the store's resources.
	Close()
}

// FromEvent flattens a pipeline event into a Record.
func FromEvent(ev event.Event) Record {
	detail := map[string]any{}
	switch ev.Type {
	case event.TypeSpeakingChanged:
		detail["speaker"] = string(ev.Speaker)
		detail["speaking"] = ev.Speaking
	case event.TypeLanguageChanged:
		detail["from"] = ev.FromLanguage
		detail["to"] = ev.ToLanguage
		detail["confidence"] = ev.Confidence
	case event.TypeSynthesisFallbackUsed:
		detail["provider"] = ev.Provider
		detail["category"] = ev.ErrorCategory
	case event.TypeCallFailed:
		detail["reason"] = ev.Reason
	}
	return Record{
		CallID: ev.CallID,
		Type:   string(ev.Type),
		At:     ev.At,
		Detail: detail,
	}
}
