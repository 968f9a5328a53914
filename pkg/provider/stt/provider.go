// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// The pipeline treats transcription as an opaque collaborator: audio frames
// go in, text fragments come out. Each call owns one Session; the language
// switch engine consumes the fragment stream.
//
// Implementations must be safe for concurrent use across sessions.
package stt

import (
	"context"
	"time"

	"github.com/dialverse/dialcore/pkg/audio"
)

// Transcript is a transcribed fragment of customer speech.
type Transcript struct {
	// Text is the transcribed content.
	Text string

	// IsFinal distinguishes authoritative results from interim ones.
	IsFinal bool

	// Confidence is the provider's overall score (0.0–1.0); zero when the
	// provider does not report one.
	Confidence float64

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration
}

// StreamConfig holds the parameters for a transcription stream.
type StreamConfig struct {
	// SampleRate of the PCM audio that will be sent, in Hz.
	SampleRate int

	// Language is the initial recognition language code (e.g., "en", "hi").
	// Providers that support multilingual recognition may ignore it.
	Language string
}

// Session is an active transcription stream for one call.
type Session interface {
	// SendAudio submits a PCM frame for transcription. Must not block
	// indefinitely; implementations buffer internally.
	SendAudio(frame audio.Frame) error

	// Transcripts returns the channel of transcribed fragments. The channel
	// is closed when the session ends.
	Transcripts() <-chan Transcript

	// Close ends the stream and releases resources. Safe to call more than
	// once.
	Close() error
}

// Provider opens transcription sessions.
type Provider interface {
	// StartStream opens a streaming session. ctx governs the session's
	// lifetime: cancelling it tears the stream down.
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
