// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A synthesizer wraps one speech vendor and turns (text, language) into raw
// PCM audio bytes. Vendor selection, per-attempt timeouts, failure
// classification, and fallback chains live in the synthesis dispatcher —
// implementations here only talk to their own vendor and report errors
// faithfully so the dispatcher can classify them.
//
// Implementations must be safe for concurrent use: one synthesizer instance
// serves every active call.
package tts

import "context"

// Synthesizer is the abstraction over a single TTS vendor.
type Synthesizer interface {
	// Synthesize converts text in the given language (BCP-47-ish code such
	// as "en" or "hi") into raw little-endian int16 PCM. The implementation
	// must respect ctx cancellation — the dispatcher applies a per-attempt
	// deadline through it.
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// Func adapts a plain function to the Synthesizer interface, the way the
// dispatcher's per-vendor "synthesize" collaborators are registered.
type Func func(ctx context.Context, text, language string) ([]byte, error)

// Synthesize implements Synthesizer.
func (f Func) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return f(ctx, text, language)
}
