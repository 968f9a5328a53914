package synth

import (
	"log/slog"
	"sync"
	"time"
)

// GateState is a provider gate's operating mode.
type GateState int

const (
	// GateHealthy forwards every attempt.
	GateHealthy GateState = iota

	// GateTripped rejects attempts until the probe delay elapses.
	GateTripped

	// GateProbing lets a limited number of attempts through; success closes
	// the gate, failure re-trips it.
	GateProbing
)

func (s GateState) String() string {
	switch s {
	case GateHealthy:
		return "healthy"
	case GateTripped:
		return "tripped"
	case GateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// GateConfig tunes a provider Gate. Zero fields take defaults.
type GateConfig struct {
	// TripAfter is the consecutive-failure count that trips the gate.
	// Default: 4.
	TripAfter int

	// ProbeDelay is how long a tripped gate rejects attempts before
	// allowing probes. Default: 20s.
	ProbeDelay time.Duration

	// ProbeBudget is how many probe attempts may run before the gate
	// decides. Default: 2.
	ProbeBudget int
}

// Gate tracks one synthesis provider's recent health so the dispatcher can
// route around a provider that keeps failing instead of burning a timeout on
// it for every response. Safe for concurrent use.
type Gate struct {
	provider    string
	tripAfter   int
	probeDelay  time.Duration
	probeBudget int

	mu          sync.Mutex
	state       GateState
	consecutive int
	trippedAt   time.Time
	probes      int
}

// NewGate creates a healthy Gate for the named provider.
func NewGate(provider string, cfg GateConfig) *Gate {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 4
	}
	if cfg.ProbeDelay <= 0 {
		cfg.ProbeDelay = 20 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	return &Gate{
		provider:    provider,
		tripAfter:   cfg.TripAfter,
		probeDelay:  cfg.ProbeDelay,
		probeBudget: cfg.ProbeBudget,
	}
}

// Allow reports whether an attempt may be made now. A tripped gate whose
// probe delay has elapsed flips to probing and grants attempts from the probe
// budget.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case GateHealthy:
		return true
	case GateTripped:
		if time.Since(g.trippedAt) < g.probeDelay {
			return false
		}
		g.state = GateProbing
		g.probes = 0
		slog.Info("synthesis provider gate probing", "provider", g.provider)
		fallthrough
	case GateProbing:
		if g.probes >= g.probeBudget {
			return false
		}
		g.probes++
		return true
	}
	return false
}

// RecordSuccess closes the gate and clears failure accounting.
func (g *Gate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GateHealthy {
		slog.Info("synthesis provider gate closed", "provider", g.provider)
	}
	g.state = GateHealthy
	g.consecutive = 0
	g.probes = 0
}

// RecordFailure counts one failure. In the probing state any failure re-trips
// immediately; in the healthy state the gate trips once the consecutive
// budget is spent.
func (g *Gate) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == GateProbing {
		g.state = GateTripped
		g.trippedAt = time.Now()
		slog.Warn("synthesis provider gate re-tripped", "provider", g.provider)
		return
	}

	g.consecutive++
	if g.state == GateHealthy && g.consecutive >= g.tripAfter {
		g.state = GateTripped
		g.trippedAt = time.Now()
		slog.Warn("synthesis provider gate tripped",
			"provider", g.provider,
			"consecutive_failures", g.consecutive)
	}
}

// State returns the gate's current mode, reporting probing for a tripped gate
// whose delay has elapsed.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GateTripped && time.Since(g.trippedAt) >= g.probeDelay {
		return GateProbing
	}
	return g.state
}
