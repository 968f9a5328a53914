package audio

import (
	"testing"
	"time"
)

func pcmBytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func samplesOf(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

func TestFrameDuration(t *testing.T) {
	f := Frame{PCM: make([]byte, 320), SampleRate: 8000, Channels: 1}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", got)
	}

	if got := (Frame{PCM: []byte{1, 2}}).Duration(); got != 0 {
		t.Errorf("Duration() without format = %v, want 0", got)
	}
}

func TestConverter_FastPath(t *testing.T) {
	c := Converter{Target: Format{SampleRate: 8000, Channels: 1}}
	in := Frame{PCM: pcmBytes(1, 2, 3), SampleRate: 8000, Channels: 1}
	out := c.Convert(in)
	if &out.PCM[0] != &in.PCM[0] {
		t.Error("matching format should not copy the PCM data")
	}
}

func TestConverter_DropsOddByteCount(t *testing.T) {
	c := Converter{Target: Format{SampleRate: 16000, Channels: 1}}
	out := c.Convert(Frame{PCM: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if len(out.PCM) != 0 {
		t.Errorf("odd byte count frame not dropped, got %d bytes", len(out.PCM))
	}
}

func TestConverter_UpsamplesPhoneAudio(t *testing.T) {
	c := Converter{Target: Format{SampleRate: 16000, Channels: 1}}
	in := Frame{PCM: pcmBytes(100, 200, 300, 400), SampleRate: 8000, Channels: 1}
	out := c.Convert(in)

	if out.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", out.SampleRate)
	}
	got := samplesOf(out.PCM)
	if len(got) != 8 {
		t.Fatalf("len(samples) = %d, want 8", len(got))
	}
	// Linear interpolation preserves the original samples at even positions.
	for i, want := range []int16{100, 200, 300, 400} {
		if got[i*2] != want {
			t.Errorf("sample[%d] = %d, want %d", i*2, got[i*2], want)
		}
	}
}

func TestStereoToMono_Averages(t *testing.T) {
	in := pcmBytes(100, 300, -200, 200)
	got := samplesOf(StereoToMono(in))
	want := []int16{200, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo_Duplicates(t *testing.T) {
	got := samplesOf(MonoToStereo(pcmBytes(7, -9)))
	want := []int16{7, 7, -9, -9}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_SameRateUnchanged(t *testing.T) {
	in := pcmBytes(1, 2, 3)
	if got := ResampleMono16(in, 8000, 8000); len(got) != len(in) {
		t.Errorf("same-rate resample changed length: %d", len(got))
	}
}

func TestMulawRoundTrip(t *testing.T) {
	// μ-law is lossy; round-tripping must stay within the quantisation step
	// of the sample's segment (coarsest step is 1024 at full scale).
	in := pcmBytes(0, 100, -100, 1000, -1000, 16000, -16000, 32000, -32000)
	dec := samplesOf(MulawDecode(MulawEncode(in)))
	orig := samplesOf(in)
	for i := range orig {
		diff := int32(dec[i]) - int32(orig[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 1024 {
			t.Errorf("sample %d: %d decoded as %d (diff %d)", i, orig[i], dec[i], diff)
		}
	}
}

func TestMulawDecode_Silence(t *testing.T) {
	// 0xFF is μ-law zero.
	got := samplesOf(MulawDecode([]byte{0xFF}))
	if got[0] != 0 {
		t.Errorf("decode(0xFF) = %d, want 0", got[0])
	}
}
