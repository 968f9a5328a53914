// Package audio defines the shared audio types and format utilities used
// across the dialcore pipeline.
//
// Frames are the atomic unit of audio transport: the telephony bridge decodes
// wire payloads into [Frame] values, the voice-activity source classifies
// them, and the call channel buffers them for the transcription collaborator.
package audio

import "time"

// Frame represents a single frame of audio flowing through a call.
type Frame struct {
	// PCM holds little-endian int16 samples.
	PCM []byte

	// SampleRate in Hz. Telephony bridges typically deliver 8000; the
	// transcription path runs at 16000.
	SampleRate int

	// Channels is 1 for telephone audio. Stereo frames are folded to mono
	// before entering the pipeline.
	Channels int

	// Timestamp marks when the frame was received, relative to call start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame's audio, or zero when
// the frame carries no format information.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Activity is a per-frame voice-activity classification as produced by the
// voice-activity source and consumed by the interruption detector.
type Activity struct {
	// Speaking reports whether the frame contains speech energy.
	Speaking bool

	// Level is the normalised energy level of the frame (0.0–1.0).
	Level float64

	// At marks when the classified frame was received.
	At time.Time
}
