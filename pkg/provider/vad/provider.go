// Package vad defines the Engine interface for voice-activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier and surfaces it as a
// stateful per-call session. Each session keeps its own smoothing state so
// concurrent calls are classified independently. Classification is synchronous
// by design: ProcessFrame returns immediately, which keeps it usable inside
// the inbound frame loop where the barge-in detector needs per-frame results.
//
// Implementations must be safe for concurrent use across different sessions.
// A single Session should not be shared across goroutines unless the
// implementation documents otherwise.
package vad

import "github.com/dialverse/dialcore/pkg/audio"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of frames passed to
	// ProcessFrame. Telephony calls typically run at 8000 or 16000.
	SampleRate int

	// SpeechThreshold is the normalised energy level above which a frame is
	// classified as speech. Range (0.0, 1.0). Typical: 0.015 for phone audio.
	SpeechThreshold float64

	// SilenceThreshold is the level below which an active speech run ends.
	// Must be ≤ SpeechThreshold (hysteresis). Typical: 0.008.
	SilenceThreshold float64

	// SpeechFrames is the number of consecutive speech-level frames required
	// before the session reports speaking. Guards against clicks and pops.
	SpeechFrames int

	// SilenceFrames is the number of consecutive silence-level frames
	// required before the session reports the speech run has ended.
	SilenceFrames int
}

// Session is an active VAD session for a single call's inbound audio.
type Session interface {
	// ProcessFrame classifies a single audio frame. The frame must be raw
	// little-endian int16 PCM at the configured sample rate. Must not block.
	ProcessFrame(frame audio.Frame) (audio.Activity, error)

	// Reset clears accumulated state without closing the session. Use after
	// a transport reconnect so stale hysteresis does not bleed into the new
	// stream.
	Reset()

	// Close releases session resources. Safe to call more than once.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
//
// Implementations must be safe for concurrent use: one engine serves every
// active call in the process.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid.
	NewSession(cfg Config) (Session, error)
}
