package synth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "socket trouble" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnclassified},
		{"context deadline", context.DeadlineExceeded, CategoryTimeout},
		{"wrapped deadline", fmt.Errorf("synthesize: %w", context.DeadlineExceeded), CategoryTimeout},
		{"net timeout", fakeNetErr{timeout: true}, CategoryTimeout},
		{"net error", fakeNetErr{}, CategoryNetworkError},
		{"timeout message", errors.New("request timed out after 5s"), CategoryTimeout},
		{"voice message", errors.New("voice id nova-7 does not exist"), CategoryInvalidVoice},
		{"status message", errors.New("unexpected status 502"), CategoryAPIError},
		{"quota message", errors.New("monthly quota exceeded"), CategoryAPIError},
		{"connection message", errors.New("connection refused"), CategoryNetworkError},
		{"unknown", errors.New("something odd"), CategoryUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
