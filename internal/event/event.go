// Package event defines the typed events the pipeline emits and a small
// ordered bus for delivering them to collaborators.
//
// Events replace ad hoc callbacks: each pipeline component publishes a typed
// value and external collaborators (call management, analytics, dashboards)
// subscribe without the components knowing about them. Delivery is
// synchronous and in subscription order, so events published from one
// goroutine are observed in publish order — the ordering contract the
// language-switch and speaking-state consumers depend on.
package event

import "time"

// Type discriminates pipeline events.
type Type string

const (
	// TypeSpeakingChanged fires on an edge of a channel's speaking flags.
	TypeSpeakingChanged Type = "speaking_changed"

	// TypeInterruptionDetected fires when the barge-in detector trips.
	TypeInterruptionDetected Type = "interruption_detected"

	// TypeLanguageChanged fires when the language engine confirms a switch.
	TypeLanguageChanged Type = "language_changed"

	// TypeSynthesisFallbackUsed fires when every provider in a fallback
	// chain failed and canned audio was delivered instead.
	TypeSynthesisFallbackUsed Type = "synthesis_fallback_used"

	// TypeCallFailed fires when a channel exhausts its reconnect budget.
	TypeCallFailed Type = "call_failed"
)

// Speaker identifies which side of the call a speaking flag refers to.
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerSystem   Speaker = "system"
)

// Event is one pipeline occurrence. Fields beyond Type/CallID/At are set
// according to Type.
type Event struct {
	Type   Type
	CallID string
	At     time.Time

	// SpeakingChanged
	Speaker  Speaker
	Speaking bool

	// LanguageChanged
	FromLanguage string
	ToLanguage   string
	Confidence   float64

	// SynthesisFallbackUsed
	Provider      string
	ErrorCategory string

	// CallFailed
	Reason string
}
