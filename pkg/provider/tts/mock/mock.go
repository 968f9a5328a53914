// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to inject canned audio or errors and inspect the requests
// the dispatcher made. Errors can be queued per call so a test can script
// "fail twice, then succeed" sequences.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/dialverse/dialcore/pkg/provider/tts"
)

// Call records a single Synthesize invocation.
type Call struct {
	Text     string
	Language string
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is returned on success. If nil, a small non-empty placeholder is
	// returned.
	Audio []byte

	// Rate, when non-zero, is reported by SampleRate as the output rate of
	// Audio.
	Rate int

	// Errs is a queue of errors returned call by call. A nil entry means
	// that call succeeds. Once exhausted, Err governs.
	Errs []error

	// Err, if non-nil, is returned by every call after Errs is exhausted.
	Err error

	// Delay, if non-zero, makes each call block until the delay elapses or
	// ctx is cancelled (for exercising per-attempt timeouts).
	Delay time.Duration

	// Calls records every invocation in order.
	Calls []Call
}

// Synthesize records the call and replays the scripted result.
func (s *Synthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, Call{Text: text, Language: language})
	var err error
	if len(s.Errs) > 0 {
		err = s.Errs[0]
		s.Errs = s.Errs[1:]
	} else {
		err = s.Err
	}
	audio := s.Audio
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if audio == nil {
		audio = []byte{0, 0, 0, 0}
	}
	return audio, nil
}

// SampleRate reports the scripted output rate, zero when unset.
func (s *Synthesizer) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rate
}

// CallCount returns the number of recorded calls. Thread-safe.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)
