// Package dialog defines the Generator interface for the response-generation
// collaborator.
//
// The pipeline does not own sales-script content; it hands a transcribed
// customer fragment plus call context to a Generator and streams whatever
// text comes back into synthesis. A Generator must honour the Language field:
// after a confirmed language switch, responses in the old language are
// discarded by the call session.
//
// Implementations must be safe for concurrent use.
package dialog

import "context"

// Request carries one turn of context to the generator.
type Request struct {
	// Transcript is the customer's transcribed fragment.
	Transcript string

	// Language is the active conversation language code (e.g., "en", "hi",
	// "mixed"). The response must be produced in this language.
	Language string

	// CallID identifies the call for conversation-state lookup.
	CallID string

	// History holds prior turns, oldest first, formatted as "role: text"
	// lines. Kept opaque so script/workflow logic stays external.
	History []string
}

// Generator produces the next thing the system should say.
type Generator interface {
	// Generate returns the response text for a customer fragment. A
	// returned error fails this turn only, never the call.
	Generate(ctx context.Context, req Request) (string, error)
}
