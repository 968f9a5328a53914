// Package interrupt implements barge-in detection: deciding, from noisy
// voice-activity classifications, whether the customer has genuinely
// interrupted while the system is speaking.
//
// The detector keeps a trailing window of speech-positive samples. When the
// density of speech samples inside the window crosses a sensitivity-derived
// threshold, one interruption fires and a cooldown opens; further qualifying
// samples during the cooldown are recorded but fire nothing, so a continuous
// interruption trips exactly once per cooldown period.
package interrupt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults for telephone audio classified in 20–40 ms frames.
const (
	// DefaultNominalSamples is the nominal sample budget N used to derive
	// the firing threshold from sensitivity.
	DefaultNominalSamples = 10

	DefaultWindow   = 400 * time.Millisecond
	DefaultCooldown = 2 * time.Second
)

// Config tunes a Detector.
type Config struct {
	// Sensitivity in [0,1]. Higher values lower the firing threshold:
	// threshold = max(2, floor(N*(1-Sensitivity))).
	Sensitivity float64

	// Window is the trailing detection-latency window; samples older than
	// this are evicted before each evaluation.
	Window time.Duration

	// Cooldown is how long after a fired interruption further firing is
	// suppressed.
	Cooldown time.Duration

	// NominalSamples is the budget N. Defaults to DefaultNominalSamples.
	NominalSamples int
}

// sample is one speech-positive observation.
type sample struct {
	at time.Time
}

// Detector decides barge-ins for a single call. All methods are safe for
// concurrent use, though in practice one inbound goroutine feeds it.
type Detector struct {
	callID      string
	threshold   int
	window      time.Duration
	cooldown    time.Duration
	onInterrupt func(at time.Time)

	mu            sync.Mutex
	samples       []sample
	cooldownUntil time.Time
	count         int
}

// New creates a Detector for callID. onInterrupt is invoked synchronously
// when an interruption fires — the call session uses it to abort the
// in-flight outbound stream. It may be nil.
func New(callID string, cfg Config, onInterrupt func(at time.Time)) (*Detector, error) {
	if cfg.Sensitivity < 0 || cfg.Sensitivity > 1 {
		return nil, fmt.Errorf("interrupt: sensitivity %g outside [0,1]", cfg.Sensitivity)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	n := cfg.NominalSamples
	if n <= 0 {
		n = DefaultNominalSamples
	}

	threshold := int(float64(n) * (1 - cfg.Sensitivity))
	if threshold < 2 {
		threshold = 2
	}

	return &Detector{
		callID:      callID,
		threshold:   threshold,
		window:      cfg.Window,
		cooldown:    cfg.Cooldown,
		onInterrupt: onInterrupt,
	}, nil
}

// Threshold returns the derived sample threshold.
func (d *Detector) Threshold() int { return d.threshold }

// Count returns the number of interruptions fired so far.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Observe feeds one classified frame. systemSpeaking is the channel's current
// flag; customerSpeaking is the frame's voice-activity classification.
// Returns true when an interruption fired on this observation.
func (d *Detector) Observe(at time.Time, customerSpeaking, systemSpeaking bool) bool {
	// Nobody talking over anybody: nothing to evaluate.
	if !customerSpeaking || !systemSpeaking {
		return false
	}

	d.mu.Lock()

	d.samples = append(d.samples, sample{at: at})
	d.evictLocked(at)

	inCooldown := at.Before(d.cooldownUntil)
	fired := false
	if !inCooldown && len(d.samples) >= d.threshold {
		fired = true
		d.count++
		d.cooldownUntil = at.Add(d.cooldown)
	}
	count := d.count
	cb := d.onInterrupt
	d.mu.Unlock()

	if fired {
		slog.Info("barge-in detected",
			"call_id", d.callID,
			"interruption_count", count,
		)
		if cb != nil {
			cb(at)
		}
	}
	return fired
}

// evictLocked drops samples older than the trailing window. Must be called
// with d.mu held.
func (d *Detector) evictLocked(now time.Time) {
	cutoff := now.Add(-d.window)
	i := 0
	for i < len(d.samples) && d.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		d.samples = append(d.samples[:0], d.samples[i:]...)
	}
}

// Reset clears the window and cooldown, keeping the diagnostic counter. Used
// after a transport reconnect.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = d.samples[:0]
	d.cooldownUntil = time.Time{}
}
