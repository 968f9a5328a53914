package language

import (
	"testing"
	"time"
)

// scripted returns a Detector that replays results in order, repeating the
// last one.
func scripted(results ...Result) Detector {
	i := 0
	return DetectorFunc(func(string) Result {
		r := results[i]
		if i < len(results)-1 {
			i++
		}
		return r
	})
}

func validConfig() Config {
	return Config{
		Initial:            English,
		ImmediateThreshold: 0.9,
		DelayedThreshold:   0.75,
		MinimumThreshold:   0.4,
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"immediate below delayed", func(c *Config) { c.ImmediateThreshold = 0.6 }},
		{"delayed below minimum", func(c *Config) { c.DelayedThreshold = 0.2 }},
		{"threshold above one", func(c *Config) { c.ImmediateThreshold = 1.5 }},
		{"unknown initial language", func(c *Config) { c.Initial = "fr" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if _, err := NewEngine("c1", cfg, nil, nil); err == nil {
				t.Error("NewEngine() error = nil, want error")
			}
		})
	}
}

func TestImmediateSwitch(t *testing.T) {
	eng, err := NewEngine("c1", validConfig(), scripted(Result{Hindi, 0.95}), nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	dec := eng.Observe("haan bilkul theek hai", false, time.Now())
	if !dec.Switched {
		t.Fatal("Observe() did not switch at confidence 0.95")
	}
	if dec.From != English || dec.To != Hindi {
		t.Errorf("switch = %s->%s, want en->hi", dec.From, dec.To)
	}
	if got := eng.Current(); got != Hindi {
		t.Errorf("Current() = %s, want hi", got)
	}
}

// A detection between the delayed and immediate thresholds needs a second
// consecutive fragment before it commits.
func TestDelayedSwitchNeedsCorroboration(t *testing.T) {
	eng, err := NewEngine("c1", validConfig(), scripted(Result{Hindi, 0.78}), nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	base := time.Now()
	if dec := eng.Observe("haan theek", false, base); dec.Switched {
		t.Fatal("switched on first fragment at confidence 0.78")
	}
	if got := eng.Current(); got != English {
		t.Fatalf("Current() = %s after one fragment, want en", got)
	}

	dec := eng.Observe("accha batao", false, base.Add(time.Second))
	if !dec.Switched {
		t.Fatal("second consecutive fragment did not switch")
	}
	if got := eng.Current(); got != Hindi {
		t.Errorf("Current() = %s, want hi", got)
	}
}

func TestInterruptionLowersBar(t *testing.T) {
	eng, err := NewEngine("c1", validConfig(), scripted(Result{Hindi, 0.78}), nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if dec := eng.Observe("haan haan", true, time.Now()); !dec.Switched {
		t.Error("interruption fragment at confidence 0.78 did not switch")
	}
}

func TestNoiseFloorKeepsCurrent(t *testing.T) {
	eng, err := NewEngine("c1", validConfig(), scripted(Result{Hindi, 0.3}), nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	base := time.Now()
	for i := 0; i < 5; i++ {
		if dec := eng.Observe("hm", false, base.Add(time.Duration(i)*time.Second)); dec.Switched {
			t.Fatal("switched below the minimum threshold")
		}
	}
	if got := eng.Current(); got != English {
		t.Errorf("Current() = %s, want en", got)
	}
}

func TestNaturalMixingSwitchesAtMinimum(t *testing.T) {
	eng, err := NewEngine("c1", validConfig(), scripted(Result{Mixed, 0.5}), nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if dec := eng.Observe("okay haan theek hai", false, time.Now()); !dec.Switched {
		t.Error("en->mixed at confidence 0.5 did not switch")
	}
}

// No two history entries may be closer than MinSwitchSpacing.
func TestAntiThrashSpacing(t *testing.T) {
	cfg := validConfig()
	cfg.MinSwitchSpacing = 5 * time.Second
	det := scripted(
		Result{Hindi, 0.95},
		Result{English, 0.95},
		Result{English, 0.95},
	)
	eng, err := NewEngine("c1", cfg, det, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	base := time.Now()
	eng.Observe("a", false, base)
	// One second later: vetoed despite immediate-level confidence.
	if dec := eng.Observe("b", false, base.Add(time.Second)); dec.Switched {
		t.Fatal("switch committed inside the spacing floor")
	}
	// Past the floor: allowed again.
	if dec := eng.Observe("c", false, base.Add(6*time.Second)); !dec.Switched {
		t.Fatal("switch vetoed outside the spacing floor")
	}

	hist := eng.History()
	if len(hist) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if gap := hist[i].At.Sub(hist[i-1].At); gap < cfg.MinSwitchSpacing {
			t.Errorf("history gap %v < spacing floor %v", gap, cfg.MinSwitchSpacing)
		}
	}
}

func TestSwitchCallbackOrder(t *testing.T) {
	det := scripted(
		Result{Hindi, 0.95},
		Result{English, 0.95},
	)
	var seen []Switch
	eng, err := NewEngine("c1", validConfig(), det, func(sw Switch) {
		seen = append(seen, sw)
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	base := time.Now()
	eng.Observe("a", false, base)
	eng.Observe("b", false, base.Add(time.Second))

	if len(seen) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(seen))
	}
	if seen[0].To != Hindi || seen[1].To != English {
		t.Errorf("callback order = %s,%s, want hi,en", seen[0].To, seen[1].To)
	}
}
