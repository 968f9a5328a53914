package deepgram

import (
	"strings"
	"testing"

	"github.com/dialverse/dialcore/pkg/provider/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestBuildURL(t *testing.T) {
	p, err := New("key", WithModel("nova-3"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Language: "hi"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	for _, want := range []string{"model=nova-3", "sample_rate=16000", "language=hi", "encoding=linear16"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q missing %q", u, want)
		}
	}
}

func TestBuildURL_DetectsLanguageWhenUnset(t *testing.T) {
	p, _ := New("key")
	u, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.Contains(u, "detect_language=true") {
		t.Errorf("URL %q should enable language detection", u)
	}
	if !strings.Contains(u, "sample_rate=8000") {
		t.Errorf("URL %q should default to 8000 Hz", u)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantOK bool
		want   string
	}{
		{
			name:   "final result",
			data:   `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello","confidence":0.97}]}}`,
			wantOK: true,
			want:   "hello",
		},
		{
			name:   "metadata message ignored",
			data:   `{"type":"Metadata"}`,
			wantOK: false,
		},
		{
			name:   "empty transcript ignored",
			data:   `{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`,
			wantOK: false,
		},
		{
			name:   "garbage ignored",
			data:   `not json`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseResponse([]byte(tt.data))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
		})
	}
}
