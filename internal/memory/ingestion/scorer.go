// Package ingestion implements the write path: dedup, embedding,
// cluster assignment, importance/emotion scoring, encryption, and
// persistence for a single piece of incoming content.
package ingestion

import (
	"strings"

	"github.com/driftline/memorycore/internal/memory/retrieval"
	"github.com/driftline/memorycore/internal/memory/vecmath"
)

// personalPronouns contribute to both importance (content is about the
// user) and emotional weight (first-person statements read as more
// emotionally invested).
var personalPronouns = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "mine": {}, "myself": {},
	"we": {}, "us": {}, "our": {}, "ours": {},
}

// Scorer computes importance_score and emotional_weight for newly
// ingested content, generalized from the teacher's weighted-sum +
// bracket + cap scoring idiom to utterance-level signals instead of
// document-freshness/authority/popularity/quality.
type Scorer struct {
	lexicon *retrieval.Lexicon
}

// NewScorer builds a Scorer over lexicon (falls back to
// retrieval.DefaultLexicon when nil).
func NewScorer(lexicon *retrieval.Lexicon) *Scorer {
	if lexicon == nil {
		lexicon = retrieval.DefaultLexicon()
	}
	return &Scorer{lexicon: lexicon}
}

// Importance computes the importance_score for text and its metadata
// flags: base 0.5, boosted by length brackets, the presence of
// emotionally-toned language, question marks (up to +0.3), personal
// pronouns, and caller-supplied metadata flags, capped at 1.0.
func (s *Scorer) Importance(text string, metadataFlags map[string]bool) float64 {
	score := 0.5

	length := len(text)
	switch {
	case length > 500:
		score += 0.2
	case length > 200:
		score += 0.1
	case length < 20:
		score -= 0.1
	}

	if s.lexicon.ToneOf(text) != retrieval.ToneNeutral {
		score += 0.1
	}

	questionMarks := strings.Count(text, "?")
	score += vecmath.Clamp01(float64(questionMarks)*0.1) * 0.3 / 1.0 // up to +0.3, saturating

	if containsPersonalPronoun(text) {
		score += 0.05
	}

	for _, set := range metadataFlags {
		if set {
			score += 0.05
		}
	}

	return vecmath.Clamp01(score)
}

// EmotionalWeight computes emotional_weight for text, similar in shape
// to Importance but weighted toward tone intensity and negative-tone
// content (negative experiences tend to be more memorable and are
// weighted slightly higher), capped at 1.0.
func (s *Scorer) EmotionalWeight(text string) float64 {
	weight := 0.0

	switch s.lexicon.ToneOf(text) {
	case retrieval.TonePositive:
		weight += 0.4
	case retrieval.ToneNegative:
		weight += 0.5 // negative tone weighted slightly higher than positive
	}

	exclamations := strings.Count(text, "!")
	weight += vecmath.Clamp01(float64(exclamations)*0.1) * 0.2

	if containsPersonalPronoun(text) {
		weight += 0.1
	}

	return vecmath.Clamp01(weight)
}

func containsPersonalPronoun(text string) bool {
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		trimmed := strings.Trim(tok, ".,!?;:\"'")
		if _, ok := personalPronouns[trimmed]; ok {
			return true
		}
	}
	return false
}
