package audio

// G.711 μ-law codec. Telephony bridges that carry PCMU payloads are decoded to
// linear PCM on ingress and re-encoded on egress.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// mulawDecodeTable maps each μ-law byte to its linear int16 value. Built once
// at init from the G.711 expansion formula.
var mulawDecodeTable [256]int16

func init() {
	for i := range mulawDecodeTable {
		u := ^uint8(i)
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		magnitude := ((int32(mantissa) << 3) + mulawBias) << exponent
		v := magnitude - mulawBias
		if u&0x80 != 0 {
			v = -v
		}
		mulawDecodeTable[i] = int16(v)
	}
}

// MulawDecode expands μ-law bytes into little-endian int16 PCM.
func MulawDecode(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		s := mulawDecodeTable[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// MulawEncode compresses little-endian int16 PCM into μ-law bytes.
func MulawEncode(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = mulawEncodeSample(s)
	}
	return out
}

func mulawEncodeSample(s int16) byte {
	sign := uint8(0)
	v := int32(s)
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias

	exponent := uint8(7)
	for mask := int32(0x4000); exponent > 0 && v&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := uint8((v >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}
