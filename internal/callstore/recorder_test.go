package callstore

import (
	"context"
	"testing"
	"time"

	"github.com/dialverse/dialcore/internal/event"
)

func TestFromEvent(t *testing.T) {
	at := time.Now()
	rec := FromEvent(event.Event{
		Type:         event.TypeLanguageChanged,
		CallID:       "c1",
		At:           at,
		FromLanguage: "en",
		ToLanguage:   "hi",
		Confidence:   0.91,
	})
	if rec.CallID != "c1" || rec.Type != "language_changed" || !rec.At.Equal(at) {
		t.Errorf("rec = %+v, want c1/language_changed at %v", rec, at)
	}
	if rec.Detail["from"] != "en" || rec.Detail["to"] != "hi" || rec.Detail["confidence"] != 0.91 {
		t.Errorf("Detail = %v, want from/to/confidence set", rec.Detail)
	}
}

func TestMemoryStoreOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.RecordEvent(ctx, Record{CallID: "c1", Type: "speaking_changed", At: time.Now()})
	}
	_ = s.RecordEvent(ctx, Record{CallID: "c2", Type: "call_failed", At: time.Now()})

	recs, err := s.EventsForCall(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("EventsForCall() error = %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("len(recs) = %d, want 5", len(recs))
	}

	recs, _ = s.EventsForCall(ctx, "c1", 2)
	if len(recs) != 2 {
		t.Errorf("len(recs) with limit = %d, want 2", len(recs))
	}
}

func TestRecorderPersistsAsynchronously(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)

	bus := event.NewBus()
	bus.Subscribe(func(ev event.Event) { rec.Handle(FromEvent(ev)) })

	for i := 0; i < 10; i++ {
		bus.Publish(event.Event{Type: event.TypeInterruptionDetected, CallID: "c1"})
	}
	rec.Close() // drains the queue

	recs, err := store.EventsForCall(context.Background(), "c1", 0)
	if err != nil {
		t.Fatalf("EventsForCall() error = %v", err)
	}
	if len(recs) != 10 {
		t.Errorf("persisted %d events, want 10", len(recs))
	}
	if rec.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", rec.Dropped())
	}
}
