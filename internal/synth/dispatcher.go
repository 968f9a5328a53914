package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dialverse/dialcore/pkg/provider/tts"
)

// DefaultProviderTimeout bounds a single provider attempt.
const DefaultProviderTimeout = 5 * time.Second

// Outcome is the result of one Synthesize call. Exactly one of the terminal
// shapes holds: real audio from Provider, or Fallback true with the canned
// clip.
type Outcome struct {
	Audio    Audio
	Provider string
	Fallback bool
	// SampleRate is the rate the audio was produced at, in Hz, taken from
	// the winning provider. Zero when the provider does not report one, in
	// which case the audio is taken to already match the consumer's rate.
	SampleRate int
	// Category is set when any attempt failed; for a fallback outcome it is
	// the category whose chain was exhausted.
	Category Category
	Attempts int
}

// Audio is synthesized PCM.
type Audio []byte

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	// Providers maps provider name to its synthesizer. Required.
	Providers map[string]tts.Synthesizer

	// Order is the preference order used for chains and first-attempt
	// selection before statistics accumulate. Required, must cover every
	// provider.
	Order []string

	// Chains overrides the per-category fallback chains. Nil means every
	// category tries Order.
	Chains map[Category][]string

	// ProviderTimeout bounds each attempt. Default: DefaultProviderTimeout.
	ProviderTimeout time.Duration

	// Gate tunes the per-provider health gates.
	Gate GateConfig

	// FallbackSampleRate and FallbackSeconds shape the canned clip.
	FallbackSampleRate int
	FallbackSeconds    float64

	// OnFallback is invoked when canned audio is delivered. May be nil.
	OnFallback func(callID, provider string, cat Category)
}

// Dispatcher routes (text, language) synthesis across providers with
// failure-aware fallback. One Dispatcher serves all calls; it is safe for
// concurrent use.
type Dispatcher struct {
	providers  map[string]tts.Synthesizer
	order      []string
	chains     *ChainSet
	stats      *Stats
	gates      map[string]*Gate
	timeout      time.Duration
	fallback     Audio
	fallbackRate int
	onFallback   func(callID, provider string, cat Category)
}

// sampleRater is implemented by synthesizers whose output rate is fixed and
// known, so outcomes can carry the rate their audio was produced at.
type sampleRater interface {
	SampleRate() int
}

// NewDispatcher validates the wiring and builds the dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("synth: no providers configured")
	}
	if len(cfg.Order) != len(cfg.Providers) {
		return nil, fmt.Errorf("synth: order lists %d providers, have %d", len(cfg.Order), len(cfg.Providers))
	}
	known := make(map[string]bool, len(cfg.Providers))
	for name := range cfg.Providers {
		known[name] = true
	}
	for _, name := range cfg.Order {
		if !known[name] {
			return nil, fmt.Errorf("synth: order names unknown provider %q", name)
		}
	}

	chainCfg := cfg.Chains
	if chainCfg == nil {
		chainCfg = DefaultChains(cfg.Order)
	}
	chains, err := NewChainSet(chainCfg, known)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	gates := make(map[string]*Gate, len(cfg.Providers))
	for name := range cfg.Providers {
		gates[name] = NewGate(name, cfg.Gate)
	}

	fallbackRate := cfg.FallbackSampleRate
	if fallbackRate <= 0 {
		fallbackRate = DefaultFallbackSampleRate
	}

	return &Dispatcher{
		providers:    cfg.Providers,
		order:        append([]string(nil), cfg.Order...),
		chains:       chains,
		stats:        NewStats(cfg.Order),
		gates:        gates,
		timeout:      timeout,
		fallback:     FallbackAudio(fallbackRate, cfg.FallbackSeconds),
		fallbackRate: fallbackRate,
		onFallback:   cfg.OnFallback,
	}, nil
}

// Stats exposes the shared provider statistics for metrics collection.
func (d *Dispatcher) Stats() *Stats { return d.stats }

// GateState reports one provider gate's mode for health reporting.
func (d *Dispatcher) GateState(provider string) (GateState, bool) {
	g, ok := d.gates[provider]
	if !ok {
		return 0, false
	}
	return g.State(), true
}

// Synthesize produces audio for text in language. It never returns an error:
// when the governing fallback chain is exhausted the canned clip is delivered
// with Fallback set. preferred names the provider to try first; empty means
// pick the current best performer.
func (d *Dispatcher) Synthesize(ctx context.Context, callID, text, language, preferred string) Outcome {
	out := Outcome{}
	tried := make(map[string]bool, len(d.order))
	lastTried := ""

	first, ok := d.firstProvider(preferred)
	if ok {
		audio, err := d.attempt(ctx, first, text, language)
		out.Attempts++
		tried[first] = true
		lastTried = first
		if err == nil {
			out.Audio = audio
			out.Provider = first
			out.SampleRate = d.providerRate(first)
			return out
		}
		out.Category = Classify(err)
		slog.Warn("synthesis attempt failed",
			"call_id", callID,
			"provider", first,
			"category", string(out.Category),
			"error", err)
	} else {
		// Every gate is rejecting attempts; nothing to classify.
		out.Category = CategoryUnclassified
	}

	// The first failure's category owns the chain until it is exhausted,
	// whatever categories the later failures classify to.
	for _, name := range d.chains.Chain(out.Category) {
		if tried[name] || !d.gates[name].Allow() {
			continue
		}
		audio, err := d.attempt(ctx, name, text, language)
		out.Attempts++
		tried[name] = true
		lastTried = name
		if err == nil {
			out.Audio = audio
			out.Provider = name
			out.SampleRate = d.providerRate(name)
			return out
		}
		slog.Warn("synthesis attempt failed",
			"call_id", callID,
			"provider", name,
			"category", string(Classify(err)),
			"error", err)
	}

	out.Audio = d.fallback
	out.Fallback = true
	out.SampleRate = d.fallbackRate
	slog.Warn("synthesis fallback audio delivered",
		"call_id", callID,
		"category", string(out.Category),
		"attempts", out.Attempts)
	if d.onFallback != nil {
		d.onFallback(callID, lastTried, out.Category)
	}
	return out
}

// providerRate reports the named provider's output sample rate, or zero when
// the provider does not publish one.
func (d *Dispatcher) providerRate(name string) int {
	if r, ok := d.providers[name].(sampleRater); ok {
		return r.SampleRate()
	}
	return 0
}

// firstProvider picks the initial attempt target: the caller's preference,
// else the best performer once statistics exist, else the configured order.
// ok is false when every candidate's gate rejects.
func (d *Dispatcher) firstProvider(preferred string) (string, bool) {
	if preferred != "" {
		if _, known := d.providers[preferred]; known && d.gates[preferred].Allow() {
			return preferred, true
		}
	}
	if best, ok := d.stats.Best(); ok && d.gates[best].Allow() {
		return best, true
	}
	for _, name := range d.order {
		if d.gates[name].Allow() {
			return name, true
		}
	}
	return "", false
}

// attempt runs one bounded provider call and folds the result into the
// shared statistics and the provider's gate.
func (d *Dispatcher) attempt(ctx context.Context, provider, text, language string) (Audio, error) {
	syn := d.providers[provider]

	actx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	audio, err := syn.Synthesize(actx, text, language)
	latency := time.Since(start)

	if err != nil {
		d.stats.RecordFailure(provider)
		d.gates[provider].RecordFailure()
		return nil, err
	}
	d.stats.RecordSuccess(provider, latency)
	d.gates[provider].RecordSuccess()
	return Audio(audio), nil
}
