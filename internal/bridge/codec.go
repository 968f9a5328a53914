// Package bridge accepts telephony media websockets and adapts them to the
// channel.Transport contract: JSON text messages for control, binary
// messages for audio payloads in the negotiated codec.
package bridge

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/dialverse/dialcore/pkg/audio"
)

// Codec identifies the payload encoding negotiated in the start message.
type Codec string

const (
	CodecPCM   Codec = "pcm"   // 16-bit little-endian linear PCM
	CodecMulaw Codec = "mulaw" // G.711 μ-law
	CodecOpus  Codec = "opus"  // Opus packets, decoded inbound only
)

// opus frame geometry for telephony-rate mono packets.
const (
	opusChannels    = 1
	opusFrameSizeMs = 20
)

// decoder converts inbound payloads to linear PCM. An opus transport holds
// decoder state across packets, so each media leg gets its own decoder.
type decoder struct {
	codec      Codec
	sampleRate int
	opus       *gopus.Decoder
}

func newDecoder(codec Codec, sampleRate int) (*decoder, error) {
	d := &decoder{codec: codec, sampleRate: sampleRate}
	switch codec {
	case CodecPCM, CodecMulaw:
	case CodecOpus:
		dec, err := gopus.NewDecoder(sampleRate, opusChannels)
		if err != nil {
			return nil, fmt.Errorf("bridge: create opus decoder: %w", err)
		}
		d.opus = dec
	default:
		return nil, fmt.Errorf("bridge: unsupported codec %q", codec)
	}
	return d, nil
}

// decode converts one payload to a PCM frame.
func (d *decoder) decode(payload []byte) (audio.Frame, error) {
	var pcm []byte
	switch d.codec {
	case CodecPCM:
		pcm = payload
	case CodecMulaw:
		pcm = audio.MulawDecode(payload)
	case CodecOpus:
		frameSize := d.sampleRate * opusFrameSizeMs / 1000
		samples, err := d.opus.Decode(payload, frameSize, false)
		if err != nil {
			return audio.Frame{}, fmt.Errorf("bridge: opus decode: %w", err)
		}
		pcm = int16sToBytes(samples)
	}
	return audio.Frame{
		PCM:        pcm,
		SampleRate: d.sampleRate,
		Channels:   1,
	}, nil
}

// encode converts outbound linear PCM to the negotiated payload encoding.
// Opus legs receive μ-law downstream audio: telephony vendors accept it on
// the return leg and it avoids keeping encoder state per call.
func (d *decoder) encode(pcm []byte) []byte {
	switch d.codec {
	case CodecMulaw, CodecOpus:
		return audio.MulawEncode(pcm)
	default:
		return pcm
	}
}

// int16sToBytes converts PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
