// Package energy implements a pure-Go RMS-energy voice-activity engine.
//
// The classifier uses dual thresholds with hysteresis: a run of frames above
// the speech threshold starts a speaking state, and only a run of frames below
// the (lower) silence threshold ends it. This avoids flickering on breaths and
// line noise, at the cost of a small start latency (SpeechFrames × frame
// duration).
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dialverse/dialcore/pkg/audio"
	"github.com/dialverse/dialcore/pkg/provider/vad"
)

// Default session parameters for 8–16 kHz telephone audio in 20 ms frames.
const (
	defaultSpeechThreshold  = 0.015
	defaultSilenceThreshold = 0.008
	defaultSpeechFrames     = 3  // ~60ms to confirm speech start
	defaultSilenceFrames    = 25 // ~500ms of silence to end a run
)

// Engine creates RMS-energy VAD sessions. The zero value is ready to use.
type Engine struct{}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New returns a ready Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements [vad.Engine]. Zero-value config fields are replaced
// with telephony defaults; an inverted threshold pair is a configuration
// error.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = defaultSpeechThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = defaultSpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = defaultSilenceFrames
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %g exceeds speech threshold %g",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &session{cfg: cfg}, nil
}

// session holds per-call hysteresis state.
type session struct {
	cfg vad.Config

	mu           sync.Mutex
	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

var errClosed = errors.New("energy: session closed")

// ProcessFrame implements [vad.Session].
func (s *session) ProcessFrame(frame audio.Frame) (audio.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.Activity{}, errClosed
	}
	if len(frame.PCM)%2 != 0 {
		return audio.Activity{}, fmt.Errorf("energy: PCM byte count %d is not int16-aligned", len(frame.PCM))
	}

	level := rms(frame.PCM)

	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silenceCount++
			s.speechCount = 0
			if s.silenceCount >= s.cfg.SilenceFrames {
				s.inSpeech = false
				s.silenceCount = 0
			}
		} else {
			s.silenceCount = 0
		}
	} else {
		if level >= s.cfg.SpeechThreshold {
			s.speechCount++
			s.silenceCount = 0
			if s.speechCount >= s.cfg.SpeechFrames {
				s.inSpeech = true
				s.speechCount = 0
			}
		} else {
			s.speechCount = 0
		}
	}

	return audio.Activity{Speaking: s.inSpeech, Level: level, At: time.Now()}, nil
}

// Reset implements [vad.Session].
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close implements [vad.Session].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rms computes the normalised root-mean-square level of int16 PCM in [0, 1].
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768
}
