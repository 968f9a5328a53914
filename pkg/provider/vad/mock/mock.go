// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify sessions are created with the expected Config. Use
// Session to inject Activity results and inspect the frames submitted for
// classification.
package mock

import (
	"sync"

	"github.com/dialverse/dialcore/pkg/audio"
	"github.com/dialverse/dialcore/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a default Session is
	// returned.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.Session. Results are consumed from
// the Results queue in order; once exhausted, the zero Activity is returned.
type Session struct {
	mu sync.Mutex

	// Results is the queue of Activity values returned by ProcessFrame.
	Results []audio.Activity

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Frames records a copy of every frame passed to ProcessFrame.
	Frames []audio.Frame

	// ResetCount is the number of Reset calls.
	ResetCount int

	// CloseCount is the number of Close calls.
	CloseCount int
}

// ProcessFrame records the frame and pops the next queued result.
func (s *Session) ProcessFrame(frame audio.Frame) (audio.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, frame)
	if s.ProcessFrameErr != nil {
		return audio.Activity{}, s.ProcessFrameErr
	}
	if len(s.Results) == 0 {
		return audio.Activity{}, nil
	}
	next := s.Results[0]
	s.Results = s.Results[1:]
	return next, nil
}

// Reset increments ResetCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close increments CloseCount and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return s.CloseErr
}

// Compile-time interface assertion.
var _ vad.Session = (*Session)(nil)
