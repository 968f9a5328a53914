// Package language decides the active conversation language for a call.
//
// Detection is layered: a keyword-pattern layer, a character-script layer and
// a fuzzy marker-vocabulary layer each score the candidate languages, and a
// fixed weighted average combines them. The per-call Engine then applies
// tiered confidence thresholds, consecutive-detection smoothing and an
// anti-thrash spacing floor before committing a switch.
package language

import "strings"

// Language is one of the closed set of conversation languages.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
	Mixed   Language = "mixed"
)

// Candidates is the closed language set in a stable order.
var Candidates = []Language{English, Hindi, Mixed}

// Valid reports whether l is a member of the closed set.
func (l Language) Valid() bool {
	switch l {
	case English, Hindi, Mixed:
		return true
	}
	return false
}

// Result is one detection outcome for a transcript fragment.
type Result struct {
	Language   Language
	Confidence float64
}

// Detector scores a transcript fragment. Implementations must be safe for
// concurrent use across calls.
type Detector interface {
	Detect(fragment string) Result
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(fragment string) Result

func (f DetectorFunc) Detect(fragment string) Result { return f(fragment) }

// tokenize lowercases and splits a fragment on spaces and common punctuation.
func tokenize(fragment string) []string {
	return strings.FieldsFunc(strings.ToLower(fragment), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', '?', '!', ';', ':', '"', '\'', '(', ')':
			return true
		}
		return false
	})
}
