package language

import (
	"regexp"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Layer weights for the combined score.
const (
	patternWeight    = 0.4
	scriptWeight     = 0.3
	vocabularyWeight = 0.3
)

// mixedFloor is the per-language presence a fragment needs in BOTH languages
// for a layer to call it mixed.
const mixedFloor = 0.25

// High-frequency function words. The pattern layer measures their density,
// which separates languages even when the vocabulary markers are absent.
var (
	englishPattern = regexp.MustCompile(`(?i)\b(the|is|are|was|and|you|your|what|how|not|yes|no|please|thanks?|okay|hello)\b`)
	hindiPattern   = regexp.MustCompile(`(?i)\b(haan|nahi|nahin|kya|hai|hain|aap|kaise|theek|accha|acha|ji|bilkul|namaste)\b|[\x{0915}-\x{0939}]`)
)

// Marker vocabularies for the fuzzy lookup layer. Romanized Hindi spelling
// varies per speaker, so tokens are matched at edit distance 1.
var vocabularies = map[Language][]string{
	English: {"yes", "no", "okay", "sure", "interested", "price", "plan", "call", "later", "busy", "tell", "more"},
	Hindi:   {"haan", "nahi", "theek", "accha", "batao", "kitna", "paisa", "baad", "abhi", "samay", "bataiye", "chahiye"},
}

// heuristicDetector is the production Detector: three scoring layers combined
// by fixed weights.
type heuristicDetector struct{}

// NewDetector returns the layered heuristic detector.
func NewDetector() Detector { return heuristicDetector{} }

func (heuristicDetector) Detect(fragment string) Result {
	tokens := tokenize(fragment)
	if len(tokens) == 0 {
		return Result{Language: English, Confidence: 0}
	}

	pe, ph := patternScores(fragment, tokens)
	se, sh := scriptScores(fragment)
	ve, vh := vocabularyScores(tokens)

	scores := map[Language]float64{
		English: patternWeight*pe + scriptWeight*se + vocabularyWeight*ve,
		Hindi:   patternWeight*ph + scriptWeight*sh + vocabularyWeight*vh,
	}
	scores[Mixed] = patternWeight*mixedScore(pe, ph) +
		scriptWeight*mixedScore(se, sh) +
		vocabularyWeight*mixedScore(ve, vh)

	best := English
	for _, l := range Candidates {
		if scores[l] > scores[best] {
			best = l
		}
	}
	conf := scores[best]
	if conf > 1 {
		conf = 1
	}
	return Result{Language: best, Confidence: conf}
}

// patternScores is keyword density per language: matches over token count.
func patternScores(fragment string, tokens []string) (en, hi float64) {
	n := float64(len(tokens))
	en = clamp1(float64(len(englishPattern.FindAllString(fragment, -1))) / n)
	hi = clamp1(float64(len(hindiPattern.FindAllString(fragment, -1))) / n)
	return en, hi
}

// scriptScores is the ratio of Latin to Devanagari letters.
func scriptScores(fragment string) (en, hi float64) {
	var latin, devanagari float64
	for _, r := range fragment {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			devanagari++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	total := latin + devanagari
	if total == 0 {
		return 0, 0
	}
	return latin / total, devanagari / total
}

// vocabularyScores is the share of tokens that fuzzy-match each language's
// marker list.
func vocabularyScores(tokens []string) (en, hi float64) {
	var enHits, hiHits float64
	for _, tok := range tokens {
		if inVocabulary(tok, vocabularies[English]) {
			enHits++
		}
		if inVocabulary(tok, vocabularies[Hindi]) {
			hiHits++
		}
	}
	n := float64(len(tokens))
	return enHits / n, hiHits / n
}

func inVocabulary(token string, markers []string) bool {
	for _, m := range markers {
		if token == m {
			return true
		}
		// Edit distance 1 absorbs romanization drift (nahi/nahin, acha/accha).
		if len(token) >= 4 && matchr.Levenshtein(token, m) <= 1 {
			return true
		}
	}
	return false
}

// mixedScore is a layer's vote for Mixed: the mean presence when both
// languages are substantially present, zero otherwise.
func mixedScore(en, hi float64) float64 {
	if en >= mixedFloor && hi >= mixedFloor {
		return (en + hi) / 2
	}
	return 0
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
