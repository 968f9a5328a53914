package event

import (
	"sync"
	"testing"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.Subscribe(func(Event) { order = append(order, 1) })
	b.Subscribe(func(Event) { order = append(order, 2) })

	b.Publish(Event{Type: TypeSpeakingChanged, CallID: "c1"})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("delivery order = %v, want [1 2]", order)
	}
}

func TestBus_PreservesPublishOrder(t *testing.T) {
	b := NewBus()
	var got []Type
	b.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	b.Publish(Event{Type: TypeLanguageChanged})
	b.Publish(Event{Type: TypeInterruptionDetected})
	b.Publish(Event{Type: TypeCallFailed})

	want := []Type{TypeLanguageChanged, TypeInterruptionDetected, TypeCallFailed}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBus_StampsTime(t *testing.T) {
	b := NewBus()
	var stamped bool
	b.Subscribe(func(ev Event) { stamped = !ev.At.IsZero() })
	b.Publish(Event{Type: TypeCallFailed})
	if !stamped {
		t.Error("Publish should stamp a zero At")
	}
}

func TestBus_ConcurrentPublishSafe(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	count := 0
	b.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				b.Publish(Event{Type: TypeSpeakingChanged})
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("delivered %d events, want 1000", count)
	}
}
