// Package openai provides an OpenAI-backed synthesizer using the audio speech
// endpoint. It implements the tts.Synthesizer interface.
package openai

import (
	"errors"
	"fmt"
	"io"

	"context"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dialverse/dialcore/pkg/provider/tts"
)

const defaultModel = "gpt-4o-mini-tts"

// Option is a functional option for the Synthesizer.
type Option func(*Synthesizer)

// WithModel overrides the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = model }
}

// WithVoice sets the voice name (e.g., "alloy", "nova"). Default: "alloy".
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(s *Synthesizer) { s.baseURL = url }
}

// Synthesizer implements tts.Synthesizer using the OpenAI API. Output is raw
// 24 kHz mono PCM; SampleRate reports that fixed rate so callers can resample
// for the outbound channel.
type Synthesizer struct {
	client  oai.Client
	model   string
	voice   string
	baseURL string
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// New constructs a Synthesizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	s := &Synthesizer{model: defaultModel, voice: "alloy"}
	for _, o := range opts {
		o(s)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}
	s.client = oai.NewClient(clientOpts...)
	return s, nil
}

// Synthesize converts text into PCM audio. The language code is forwarded as
// part of the instruction string — the OpenAI speech endpoint has no first-
// class language parameter and follows the text's language, so the hint only
// matters for mixed-script fragments.
func (s *Synthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(s.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: speech request (lang=%s): %w", language, err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech body: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("openai: empty audio response")
	}
	return pcm, nil
}

// SampleRate reports the speech endpoint's PCM response rate, which the API
// fixes at 24 kHz.
func (s *Synthesizer) SampleRate() int { return 24000 }
