package language

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Smoothing constants.
const (
	// counterDecay is applied to non-matching languages' consecutive
	// counters on every detection, instead of a hard reset.
	counterDecay = 0.5

	// historyBoost is added when a detection matches the majority of the
	// recent switch history; oscillationPenalty is subtracted when
	// oscillationLimit or more switches happened inside oscillationWindow.
	historyBoost       = 0.05
	historyDepth       = 5
	oscillationPenalty = 0.1
	oscillationLimit   = 3
	oscillationWindow  = 30 * time.Second
)

// naturalMixing lists transitions a bilingual speaker makes mid-utterance
// without signalling a deliberate switch; these commit at the minimum
// threshold.
var naturalMixing = map[[2]Language]bool{
	{English, Mixed}: true,
	{Mixed, English}: true,
	{Hindi, Mixed}:   true,
	{Mixed, Hindi}:   true,
}

// Config tunes a per-call Engine. Thresholds must satisfy
// Minimum <= Delayed <= Immediate.
type Config struct {
	Initial Language

	// ImmediateThreshold commits a switch on a single fragment.
	ImmediateThreshold float64
	// DelayedThreshold commits when corroborated by an interruption or by
	// two consecutive detections.
	DelayedThreshold float64
	// MinimumThreshold is the floor below which a detection is treated as
	// noise and ignored.
	MinimumThreshold float64

	// MinSwitchSpacing vetoes any switch closer than this to the previous
	// one, whatever the confidence.
	MinSwitchSpacing time.Duration
}

func (c Config) validate() error {
	if !c.Initial.Valid() {
		return fmt.Errorf("initial language %q not in the supported set", c.Initial)
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"immediateThreshold", c.ImmediateThreshold},
		{"delayedThreshold", c.DelayedThreshold},
		{"minimumThreshold", c.MinimumThreshold},
	} {
		if t.value < 0 || t.value > 1 {
			return fmt.Errorf("%s %g outside [0,1]", t.name, t.value)
		}
	}
	if c.MinimumThreshold > c.DelayedThreshold || c.DelayedThreshold > c.ImmediateThreshold {
		return fmt.Errorf("thresholds must satisfy minimum <= delayed <= immediate, got %g/%g/%g",
			c.MinimumThreshold, c.DelayedThreshold, c.ImmediateThreshold)
	}
	return nil
}

// Switch is one committed language change, appended to the call's history.
type Switch struct {
	From       Language
	To         Language
	Confidence float64
	At         time.Time
}

// Decision reports what Observe did with one fragment.
type Decision struct {
	Detected Result
	Switched bool
	From     Language
	To       Language
}

// Engine owns one call's language state. It is safe for concurrent use; in
// practice the call session feeds it fragments in transcript order.
type Engine struct {
	callID   string
	cfg      Config
	detector Detector
	onSwitch func(sw Switch)

	mu          sync.Mutex
	current     Language
	consecutive map[Language]float64
	history     []Switch
	lastSwitch  time.Time
}

// NewEngine creates the engine with the call's initial language. onSwitch is
// invoked synchronously, in history append order, for every committed switch;
// it may be nil.
func NewEngine(callID string, cfg Config, detector Detector, onSwitch func(Switch)) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("language: %w", err)
	}
	if detector == nil {
		detector = NewDetector()
	}
	return &Engine{
		callID:      callID,
		cfg:         cfg,
		detector:    detector,
		onSwitch:    onSwitch,
		current:     cfg.Initial,
		consecutive: make(map[Language]float64, len(Candidates)),
	}, nil
}

// Current returns the active language.
func (e *Engine) Current() Language {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// History returns a copy of the append-only switch history.
func (e *Engine) History() []Switch {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Switch, len(e.history))
	copy(out, e.history)
	return out
}

// Observe processes one transcribed fragment. interruption marks fragments
// produced by a barge-in, which lowers the bar for committing a switch.
func (e *Engine) Observe(fragment string, interruption bool, at time.Time) Decision {
	res := e.detector.Detect(fragment)

	e.mu.Lock()
	defer e.mu.Unlock()

	dec := Decision{Detected: res, From: e.current, To: e.current}

	// Below the noise floor: keep the current language, touch nothing.
	if res.Confidence < e.cfg.MinimumThreshold {
		return dec
	}

	conf := e.adjustLocked(res, at)
	e.bumpLocked(res.Language)

	if res.Language == e.current {
		return dec
	}
	if !e.shouldSwitchLocked(res.Language, conf, interruption) {
		return dec
	}
	// Anti-thrash floor overrides every rule above.
	if !e.lastSwitch.IsZero() && at.Sub(e.lastSwitch) < e.cfg.MinSwitchSpacing {
		return dec
	}

	sw := Switch{From: e.current, To: res.Language, Confidence: conf, At: at}
	e.current = res.Language
	e.history = append(e.history, sw)
	e.lastSwitch = at
	for l := range e.consecutive {
		if l != res.Language {
			e.consecutive[l] *= counterDecay
		}
	}

	slog.Info("language switched",
		"call_id", e.callID,
		"from", sw.From,
		"to", sw.To,
		"confidence", sw.Confidence,
	)
	if e.onSwitch != nil {
		e.onSwitch(sw)
	}

	dec.Switched = true
	dec.To = sw.To
	return dec
}

// adjustLocked applies the history-aware confidence nudges.
func (e *Engine) adjustLocked(res Result, at time.Time) float64 {
	conf := res.Confidence

	if n := len(e.history); n > 0 {
		votes := 0
		start := n - historyDepth
		if start < 0 {
			start = 0
		}
		for _, sw := range e.history[start:] {
			if sw.To == res.Language {
				votes++
			}
		}
		if votes*2 > n-start {
			conf += historyBoost
		}
	}

	recent := 0
	for i := len(e.history) - 1; i >= 0; i-- {
		if at.Sub(e.history[i].At) > oscillationWindow {
			break
		}
		recent++
	}
	if recent >= oscillationLimit {
		conf -= oscillationPenalty
	}

	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// bumpLocked increments the detected language's consecutive counter and
// decays the others.
func (e *Engine) bumpLocked(detected Language) {
	for _, l := range Candidates {
		if l == detected {
			e.consecutive[l]++
		} else {
			e.consecutive[l] *= counterDecay
		}
	}
}

func (e *Engine) shouldSwitchLocked(detected Language, conf float64, interruption bool) bool {
	switch {
	case conf >= e.cfg.ImmediateThreshold:
		return true
	case interruption && conf >= e.cfg.DelayedThreshold:
		return true
	case e.consecutive[detected] >= 2 && conf >= e.cfg.DelayedThreshold:
		return true
	case naturalMixing[[2]Language{e.current, detected}]:
		return true
	}
	return false
}
