// Package synth turns response text into audio with provider-failure
// resilience: failures are classified into categories, each category owns an
// ordered fallback chain of providers, and when every provider in the chain
// has failed a canned fallback clip is delivered instead of an error.
package synth

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Category classifies a provider synthesis failure. The category selected by
// the FIRST failure governs the fallback chain for the rest of the attempt.
type Category string

const (
	CategoryTimeout      Category = "timeout"
	CategoryInvalidVoice Category = "invalid_voice"
	CategoryAPIError     Category = "api_error"
	CategoryNetworkError Category = "network_error"
	CategoryUnclassified Category = "unclassified"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryTimeout,
	CategoryInvalidVoice,
	CategoryAPIError,
	CategoryNetworkError,
	CategoryUnclassified,
}

// Classify maps a provider error to its Category. Typed errors are checked
// first, then message inspection; anything unrecognized is unclassified.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnclassified
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetworkError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "voice"):
		return CategoryInvalidVoice
	case strings.Contains(msg, "status") || strings.Contains(msg, "api") || strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit"):
		return CategoryAPIError
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dial") || strings.Contains(msg, "refused") || strings.Contains(msg, "reset"):
		return CategoryNetworkError
	}
	return CategoryUnclassified
}
