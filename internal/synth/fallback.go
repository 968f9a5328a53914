package synth

// DefaultFallbackSampleRate matches the telephony channel rate so the canned
// clip can be streamed without conversion.
const DefaultFallbackSampleRate = 8000

// FallbackAudio is a pre-generated PCM clip delivered when every provider in
// a fallback chain has failed, so the customer hears a deliberate pause
// instead of indefinite dead air.
func FallbackAudio(sampleRate int, seconds float64) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultFallbackSampleRate
	}
	if seconds <= 0 {
		seconds = 1.5
	}
	// 16-bit mono silence.
	return make([]byte, int(float64(sampleRate)*seconds)*2)
}
