// Package mock provides test doubles for the stt package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/dialverse/dialcore/pkg/audio"
	"github.com/dialverse/dialcore/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a fresh default Session
	// is created per call.
	Session stt.Session

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// StartStreamCalls records the config of each StartStream call.
	StartStreamCalls []stt.StreamConfig
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.Session. Tests push transcripts
// through Emit and the pipeline consumes them from Transcripts.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// Sent records every frame passed to SendAudio.
	Sent []audio.Frame

	// CloseCount is the number of Close calls.
	CloseCount int

	ch     chan stt.Transcript
	closed bool
}

// NewSession creates a mock session with a buffered transcript channel.
func NewSession() *Session {
	return &Session{ch: make(chan stt.Transcript, 64)}
}

// Emit delivers a transcript to the session's consumers. No-op after Close.
func (s *Session) Emit(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- t
}

// SendAudio records the frame and returns SendAudioErr.
func (s *Session) SendAudio(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, frame)
	return s.SendAudioErr
}

// SentFrames returns a copy of the frames submitted so far. Thread-safe.
func (s *Session) SentFrames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.Sent))
	copy(out, s.Sent)
	return out
}

// Transcripts returns the mock transcript channel.
func (s *Session) Transcripts() <-chan stt.Transcript { return s.ch }

// Close closes the transcript channel once and counts the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Compile-time interface assertion.
var _ stt.Session = (*Session)(nil)
