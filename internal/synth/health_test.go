package synth

import (
	"testing"
	"time"
)

func TestGateTripsAfterConsecutiveFailures(t *testing.T) {
	g := NewGate("a", GateConfig{TripAfter: 3, ProbeDelay: time.Hour})

	for i := 0; i < 2; i++ {
		g.RecordFailure()
		if !g.Allow() {
			t.Fatalf("Allow() = false after %d failures, want true", i+1)
		}
	}
	g.RecordFailure()
	if g.Allow() {
		t.Error("Allow() = true after trip, want false")
	}
	if got := g.State(); got != GateTripped {
		t.Errorf("State() = %v, want tripped", got)
	}
}

func TestGateSuccessResetsCounter(t *testing.T) {
	g := NewGate("a", GateConfig{TripAfter: 2, ProbeDelay: time.Hour})
	g.RecordFailure()
	g.RecordSuccess()
	g.RecordFailure()
	if !g.Allow() {
		t.Error("Allow() = false, want true: success should clear the streak")
	}
}

func TestGateProbesAfterDelay(t *testing.T) {
	g := NewGate("a", GateConfig{TripAfter: 1, ProbeDelay: 20 * time.Millisecond, ProbeBudget: 1})

	g.RecordFailure()
	if g.Allow() {
		t.Fatal("Allow() = true while tripped")
	}

	time.Sleep(30 * time.Millisecond)
	if !g.Allow() {
		t.Fatal("Allow() = false after probe delay, want probe granted")
	}
	// Budget of one: a second probe is rejected until the first resolves.
	if g.Allow() {
		t.Error("Allow() = true past the probe budget")
	}

	g.RecordSuccess()
	if !g.Allow() {
		t.Error("Allow() = false after successful probe, want healthy")
	}
	if got := g.State(); got != GateHealthy {
		t.Errorf("State() = %v, want healthy", got)
	}
}

func TestGateProbeFailureRetrips(t *testing.T) {
	g := NewGate("a", GateConfig{TripAfter: 1, ProbeDelay: 10 * time.Millisecond})

	g.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !g.Allow() {
		t.Fatal("probe not granted")
	}
	g.RecordFailure()
	if g.Allow() {
		t.Error("Allow() = true immediately after failed probe, want re-tripped")
	}
}
