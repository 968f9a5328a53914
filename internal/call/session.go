// Package call runs the per-call pipeline: inbound audio is classified for
// voice activity, fed to transcription, and every final transcript drives one
// conversation turn through the language engine, the dialog generator, and
// speech synthesis back onto the wire.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dialverse/dialcore/internal/channel"
	"github.com/dialverse/dialcore/internal/event"
	"github.com/dialverse/dialcore/internal/interrupt"
	"github.com/dialverse/dialcore/internal/language"
	"github.com/dialverse/dialcore/internal/synth"
	"github.com/dialverse/dialcore/pkg/audio"
	"github.com/dialverse/dialcore/pkg/provider/dialog"
	"github.com/dialverse/dialcore/pkg/provider/stt"
	"github.com/dialverse/dialcore/pkg/provider/vad"
)

const (
	// defaultInterruptionCarryover bounds how long after a barge-in a
	// transcript still counts as interruption-triggered for the language
	// engine's lowered switch threshold.
	defaultInterruptionCarryover = 2 * time.Second

	// defaultHistoryDepth caps the conversation turns kept for the dialog
	// generator.
	defaultHistoryDepth = 20
)

// Collaborators bundles the external services a session talks to.
type Collaborators struct {
	VAD    vad.Engine
	STT    stt.Provider
	Dialog dialog.Generator
	Synth  *synth.Dispatcher
}

func (c Collaborators) validate() error {
	var errs []error
	if c.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if c.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if c.Dialog == nil {
		errs = append(errs, errors.New("dialog generator is required"))
	}
	if c.Synth == nil {
		errs = append(errs, errors.New("synthesis dispatcher is required"))
	}
	return errors.Join(errs...)
}

// Config holds the per-call pipeline parameters.
type Config struct {
	// SampleRate of the inbound PCM, in Hz.
	SampleRate int

	// VAD configures the voice-activity session.
	VAD vad.Config

	// Interrupt configures the barge-in detector.
	Interrupt interrupt.Config

	// Language configures the language switch engine.
	Language language.Config

	// InterruptionCarryover is how recently a barge-in must have fired for
	// a transcript to be treated as interruption-triggered. Zero uses the
	// default.
	InterruptionCarryover time.Duration

	// HistoryDepth limits conversation lines handed to the dialog
	// generator. Zero uses the default.
	HistoryDepth int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 8000
	}
	if c.VAD.SampleRate <= 0 {
		c.VAD.SampleRate = c.SampleRate
	}
	if c.Language.Initial == "" {
		c.Language.Initial = language.English
	}
	if c.Language.ImmediateThreshold == 0 {
		c.Language.ImmediateThreshold = 0.9
	}
	if c.Language.DelayedThreshold == 0 {
		c.Language.DelayedThreshold = 0.75
	}
	if c.Language.MinimumThreshold == 0 {
		c.Language.MinimumThreshold = 0.4
	}
	if c.InterruptionCarryover <= 0 {
		c.InterruptionCarryover = defaultInterruptionCarryover
	}
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = defaultHistoryDepth
	}
	return c
}

// Session drives the pipeline for one call. Create with NewSession and run
// with Run; the session ends when the channel closes or the context is
// cancelled.
type Session struct {
	callID string
	ch     *channel.CallAudioChannel
	bus    *event.Bus
	col    Collaborators
	cfg    Config
	log    *slog.Logger

	engine   *language.Engine
	detector *interrupt.Detector
	conv     *audio.Converter

	// lastInterrupt holds the UnixNano of the most recent barge-in; zero
	// before the first one.
	lastInterrupt atomic.Int64

	historyMu sync.Mutex
	history   []string
}

// NewSession wires the detector and language engine for one call. The
// detector's trip aborts any in-flight outbound stream and publishes an
// interruption event; confirmed language switches are published the same way.
func NewSession(callID string, ch *channel.CallAudioChannel, bus *event.Bus, col Collaborators, cfg Config) (*Session, error) {
	if ch == nil {
		return nil, errors.New("call: channel is required")
	}
	if bus == nil {
		return nil, errors.New("call: event bus is required")
	}
	if err := col.validate(); err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}
	cfg = cfg.withDefaults()

	s := &Session{
		callID: callID,
		ch:     ch,
		bus:    bus,
		col:    col,
		cfg:    cfg,
		log:    slog.Default().With("call_id", callID),
		conv:   &audio.Converter{Target: audio.Format{SampleRate: cfg.SampleRate, Channels: 1}},
	}

	detector, err := interrupt.New(callID, cfg.Interrupt, s.onInterrupt)
	if err != nil {
		return nil, fmt.Errorf("call: interrupt detector: %w", err)
	}
	s.detector = detector

	engine, err := language.NewEngine(callID, cfg.Language, language.NewDetector(), s.onSwitch)
	if err != nil {
		return nil, fmt.Errorf("call: language engine: %w", err)
	}
	s.engine = engine

	return s, nil
}

// Language returns the currently active conversation language.
func (s *Session) Language() language.Language { return s.engine.Current() }

// History returns a copy of the conversation lines accumulated so far,
// oldest first.
func (s *Session) History() []string {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) onInterrupt(at time.Time) {
	s.lastInterrupt.Store(at.UnixNano())
	s.ch.Abort()
	s.bus.Publish(event.Event{
		Type:   event.TypeInterruptionDetected,
		CallID: s.callID,
		At:     at,
	})
	s.log.Info("barge-in detected, aborting outbound stream")
}

func (s *Session) onSwitch(sw language.Switch) {
	s.bus.Publish(event.Event{
		Type:         event.TypeLanguageChanged,
		CallID:       s.callID,
		At:           sw.At,
		FromLanguage: string(sw.From),
		ToLanguage:   string(sw.To),
		Confidence:   sw.Confidence,
	})
}

// Run executes the pipeline until the channel's inbound stream ends or ctx
// is cancelled. The transcription and VAD sessions are opened here and torn
// down on return.
func (s *Session) Run(ctx context.Context) error {
	sttSession, err := s.col.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: s.cfg.SampleRate,
		Language:   string(s.engine.Current()),
	})
	if err != nil {
		return fmt.Errorf("call: start transcription: %w", err)
	}
	defer sttSession.Close()

	vadSession, err := s.col.VAD.NewSession(s.cfg.VAD)
	if err != nil {
		return fmt.Errorf("call: start vad: %w", err)
	}
	defer vadSession.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.inboundLoop(ctx, vadSession, sttSession) })
	g.Go(func() error { return s.turnLoop(ctx, sttSession) })
	return g.Wait()
}

// inboundLoop classifies each inbound frame, maintains the customer speaking
// flag, feeds the barge-in detector, and forwards the frame to transcription.
func (s *Session) inboundLoop(ctx context.Context, vadSession vad.Session, sttSession stt.Session) error {
	defer sttSession.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ch.Done():
			return nil
		case frame := <-s.ch.Inbound():
			act, err := vadSession.ProcessFrame(frame)
			if err != nil {
				s.log.Warn("vad classification failed", "error", err)
				continue
			}
			at := act.At
			if at.IsZero() {
				at = time.Now()
			}
			s.ch.SetSpeaking(event.SpeakerCustomer, act.Speaking)
			s.detector.Observe(at, act.Speaking, s.ch.SystemSpeaking())
			if err := sttSession.SendAudio(frame); err != nil {
				s.log.Warn("transcription send failed", "error", err)
			}
		}
	}
}

// turnLoop consumes final transcripts and runs one conversation turn per
// fragment. Turn failures are logged and skipped; they never end the call.
func (s *Session) turnLoop(ctx context.Context, sttSession stt.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-sttSession.Transcripts():
			if !ok {
				return nil
			}
			if !tr.IsFinal || strings.TrimSpace(tr.Text) == "" {
				continue
			}
			s.handleTurn(ctx, tr)
		}
	}
}

func (s *Session) handleTurn(ctx context.Context, tr stt.Transcript) {
	now := time.Now()
	interruption := s.recentInterruption(now)
	dec := s.engine.Observe(tr.Text, interruption, now)

	reply, lang, ok := s.generate(ctx, tr.Text)
	if !ok {
		return
	}

	out := s.col.Synth.Synthesize(ctx, s.callID, reply, string(lang), "")
	pcm := []byte(out.Audio)
	// Providers synthesize at their own rates (16 or 24 kHz typically); the
	// wire wants the channel rate. A zero rate means the audio already
	// matches.
	if out.SampleRate > 0 && out.SampleRate != s.cfg.SampleRate {
		pcm = s.conv.Convert(audio.Frame{PCM: pcm, SampleRate: out.SampleRate, Channels: 1}).PCM
	}
	if _, err := s.ch.StreamOutbound(ctx, pcm); err != nil {
		switch {
		case errors.Is(err, channel.ErrStreamAborted):
			s.log.Debug("outbound stream aborted by barge-in")
		case errors.Is(err, channel.ErrChannelClosed):
			s.log.Debug("channel closed during outbound stream")
		default:
			s.log.Warn("outbound stream failed", "error", err)
		}
	}

	s.appendHistory(tr.Text, reply)
	if dec.Switched {
		s.log.Debug("turn completed after language switch",
			"from", dec.From, "to", dec.To)
	}
}

// generate produces the reply in the active language. If the language engine
// switches while a response is in flight, the stale response is discarded and
// one regeneration is attempted in the new language; a response generated for
// the old language is never spoken.
func (s *Session) generate(ctx context.Context, transcript string) (string, language.Language, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		lang := s.engine.Current()
		reply, err := s.col.Dialog.Generate(ctx, dialog.Request{
			Transcript: transcript,
			Language:   string(lang),
			CallID:     s.callID,
			History:    s.History(),
		})
		if err != nil {
			s.log.Error("dialog generation failed", "error", err, "language", lang)
			return "", lang, false
		}
		if s.engine.Current() == lang {
			return reply, lang, true
		}
		s.log.Info("discarding stale response after language switch",
			"generated_for", lang, "active", s.engine.Current())
	}
	s.log.Warn("language switched twice during generation, dropping turn")
	return "", s.engine.Current(), false
}

func (s *Session) recentInterruption(now time.Time) bool {
	last := s.lastInterrupt.Load()
	if last == 0 {
		return false
	}
	return now.Sub(time.Unix(0, last)) <= s.cfg.InterruptionCarryover
}

func (s *Session) appendHistory(transcript, reply string) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history,
		"customer: "+transcript,
		"agent: "+reply,
	)
	if over := len(s.history) - s.cfg.HistoryDepth; over > 0 {
		s.history = s.history[over:]
	}
}
