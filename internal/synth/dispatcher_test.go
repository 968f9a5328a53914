package synth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dialverse/dialcore/pkg/provider/tts"
	ttsmock "github.com/dialverse/dialcore/pkg/provider/tts/mock"
)

func newDispatcher(t *testing.T, cfg DispatcherConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(cfg)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func TestNewDispatcherValidation(t *testing.T) {
	mock := &ttsmock.Synthesizer{Audio: []byte{1}}

	if _, err := NewDispatcher(DispatcherConfig{}); err == nil {
		t.Error("NewDispatcher(empty) error = nil, want error")
	}
	_, err := NewDispatcher(DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"a": mock},
		Order:     []string{"a", "ghost"},
	})
	if err == nil {
		t.Error("NewDispatcher(unknown provider in order) error = nil, want error")
	}
	_, err = NewDispatcher(DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"a": mock},
		Order:     []string{"a"},
		Chains: map[Category][]string{
			CategoryTimeout: {"ghost"},
		},
	})
	if err == nil {
		t.Error("NewDispatcher(unknown provider in chain) error = nil, want error")
	}
}

func TestSynthesizeSuccessFirstTry(t *testing.T) {
	mock := &ttsmock.Synthesizer{Audio: []byte("pcm")}
	d := newDispatcher(t, DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"a": mock},
		Order:     []string{"a"},
	})

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "")
	if out.Fallback {
		t.Fatal("Synthesize() delivered fallback, want provider audio")
	}
	if out.Provider != "a" || out.Attempts != 1 {
		t.Errorf("Provider = %q, Attempts = %d, want a, 1", out.Provider, out.Attempts)
	}
	if string(out.Audio) != "pcm" {
		t.Errorf("Audio = %q, want %q", out.Audio, "pcm")
	}
}

func TestOutcomeCarriesSampleRate(t *testing.T) {
	mock := &ttsmock.Synthesizer{Audio: []byte("pcm"), Rate: 16000}
	d := newDispatcher(t, DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"a": mock},
		Order:     []string{"a"},
	})

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "")
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", out.SampleRate)
	}
}

func TestFallbackOutcomeSampleRate(t *testing.T) {
	mock := &ttsmock.Synthesizer{Err: errors.New("api returned status 500")}
	d := newDispatcher(t, DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"a": mock},
		Order:     []string{"a"},
	})

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "")
	if !out.Fallback {
		t.Fatal("Synthesize() = provider audio, want fallback")
	}
	if out.SampleRate != DefaultFallbackSampleRate {
		t.Errorf("SampleRate = %d, want %d", out.SampleRate, DefaultFallbackSampleRate)
	}
}

// The first failure's category selects the chain, and that chain governs
// until exhausted even when later failures classify differently.
func TestFirstCategoryOwnsChain(t *testing.T) {
	primary := &ttsmock.Synthesizer{Err: errors.New("request timed out")}
	b := &ttsmock.Synthesizer{Err: errors.New("api returned status 500")}
	c := &ttsmock.Synthesizer{Audio: []byte("from-c")}

	d := newDispatcher(t, DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"primary": primary, "b": b, "c": c},
		Order:     []string{"primary", "b", "c"},
		Chains: map[Category][]string{
			CategoryTimeout:      {"b", "c"},
			CategoryAPIError:     {"primary"}, // would dead-end if consulted
			CategoryInvalidVoice: {},
			CategoryNetworkError: {},
			CategoryUnclassified: {},
		},
	})

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "primary")
	if out.Fallback {
		t.Fatal("Synthesize() delivered fallback, want audio from c")
	}
	if out.Provider != "c" {
		t.Errorf("Provider = %q, want c", out.Provider)
	}
	if out.Category != CategoryTimeout {
		t.Errorf("Category = %q, want timeout", out.Category)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
	if b.CallCount() != 1 || c.CallCount() != 1 {
		t.Errorf("chain calls b=%d c=%d, want 1 and 1", b.CallCount(), c.CallCount())
	}
}

// Synthesize never errors: with every provider failing it delivers the canned
// clip and reports the fallback.
func TestFallbackTermination(t *testing.T) {
	failing := func() *ttsmock.Synthesizer {
		return &ttsmock.Synthesizer{Err: errors.New("connection refused")}
	}
	var gotCall, gotProvider string
	var gotCat Category
	d := newDispatcher(t, DispatcherConfig{
		Providers:          map[string]tts.Synthesizer{"a": failing(), "b": failing()},
		Order:              []string{"a", "b"},
		FallbackSampleRate: 8000,
		FallbackSeconds:    0.5,
		OnFallback: func(callID, provider string, cat Category) {
			gotCall, gotProvider, gotCat = callID, provider, cat
		},
	})

	out := d.Synthesize(context.Background(), "c9", "hello", "en", "")
	if !out.Fallback {
		t.Fatal("Synthesize() did not fall back with all providers failing")
	}
	if len(out.Audio) != 8000 {
		t.Errorf("len(Audio) = %d, want 8000 (0.5s of 16-bit 8kHz silence)", len(out.Audio))
	}
	if out.Category != CategoryNetworkError {
		t.Errorf("Category = %q, want network_error", out.Category)
	}
	if gotCall != "c9" || gotProvider != "b" || gotCat != CategoryNetworkError {
		t.Errorf("OnFallback(%q, %q, %q), want (c9, b, network_error)", gotCall, gotProvider, gotCat)
	}
}

func TestProviderTimeoutClassified(t *testing.T) {
	slow := &ttsmock.Synthesizer{Audio: []byte("late"), Delay: 200 * time.Millisecond}
	d := newDispatcher(t, DispatcherConfig{
		Providers:       map[string]tts.Synthesizer{"slow": slow},
		Order:           []string{"slow"},
		ProviderTimeout: 20 * time.Millisecond,
	})

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "")
	if !out.Fallback {
		t.Fatal("Synthesize() returned audio from a timed-out provider")
	}
	if out.Category != CategoryTimeout {
		t.Errorf("Category = %q, want timeout", out.Category)
	}
}

// Once a provider has three samples and the better score, it becomes the
// default first attempt.
func TestBestProviderSelected(t *testing.T) {
	fast := &ttsmock.Synthesizer{Audio: []byte("fast")}
	flaky := &ttsmock.Synthesizer{Audio: []byte("flaky")}
	d := newDispatcher(t, DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"flaky": flaky, "fast": fast},
		Order:     []string{"flaky", "fast"},
	})

	d.stats.RecordSuccess("fast", 50*time.Millisecond)
	d.stats.RecordSuccess("fast", 60*time.Millisecond)
	d.stats.RecordSuccess("fast", 55*time.Millisecond)
	d.stats.RecordFailure("flaky")
	d.stats.RecordFailure("flaky")
	d.stats.RecordSuccess("flaky", 50*time.Millisecond)

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "")
	if out.Provider != "fast" {
		t.Errorf("Provider = %q, want fast (best performer)", out.Provider)
	}
	if flaky.CallCount() != 0 {
		t.Errorf("flaky.CallCount() = %d, want 0", flaky.CallCount())
	}
}

func TestPreferredProviderWins(t *testing.T) {
	a := &ttsmock.Synthesizer{Audio: []byte("a")}
	b := &ttsmock.Synthesizer{Audio: []byte("b")}
	d := newDispatcher(t, DispatcherConfig{
		Providers: map[string]tts.Synthesizer{"a": a, "b": b},
		Order:     []string{"a", "b"},
	})

	out := d.Synthesize(context.Background(), "c1", "hello", "en", "b")
	if out.Provider != "b" {
		t.Errorf("Provider = %q, want preferred b", out.Provider)
	}
}
