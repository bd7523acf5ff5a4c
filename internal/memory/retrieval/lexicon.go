package retrieval

import "strings"

// Tone is a coarse emotional register used for alignment scoring.
type Tone int

const (
	ToneNeutral Tone = iota
	TonePositive
	ToneNegative
)

// Lexicon classifies free text into a Tone and recognizes entities for
// the answer-boost step, entirely from configuration rather than a
// trained model — both word lists are small and meant to be replaced or
// extended by deployments without a code change.
type Lexicon struct {
	positiveWords map[string]struct{}
	negativeWords map[string]struct{}
	entities      map[string]struct{}
}

// DefaultLexicon returns a small built-in word list covering common
// emotional registers and a handful of recognizable entity names. Most
// deployments will supply their own via NewLexicon.
func DefaultLexicon() *Lexicon {
	return NewLexicon(
		[]string{"happy", "glad", "love", "great", "wonderful", "excited", "thank", "grateful"},
		[]string{"sad", "angry", "hate", "terrible", "awful", "upset", "afraid", "worried"},
		nil,
	)
}

// NewLexicon builds a Lexicon from explicit word lists. entities is an
// optional list of proper nouns (character/person names) the answer-
// boost step recognizes; when nil, entity recognition falls back to any
// capitalized word.
func NewLexicon(positive, negative, entities []string) *Lexicon {
	l := &Lexicon{
		positiveWords: toSet(positive),
		negativeWords: toSet(negative),
		entities:      toSet(entities),
	}
	return l
}

func toSet(words []string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

// ToneOf classifies text by counting lexicon hits; ties and absence of
// any hit both resolve to ToneNeutral.
func (l *Lexicon) ToneOf(text string) Tone {
	pos, neg := 0, 0
	for _, tok := range tokenize(text) {
		if _, ok := l.positiveWords[tok]; ok {
			pos++
		}
		if _, ok := l.negativeWords[tok]; ok {
			neg++
		}
	}
	switch {
	case pos > neg:
		return TonePositive
	case neg > pos:
		return ToneNegative
	default:
		return ToneNeutral
	}
}

// EmotionalAlignment scores how well a candidate's tone matches the
// query's tone: 1.0 when both sides carry the same tone (including
// both neutral), 0.0 for opposite tones, 0.5 for a neutral/non-neutral
// mismatch.
func (l *Lexicon) EmotionalAlignment(queryText, candidateText string) float64 {
	q := l.ToneOf(queryText)
	c := l.ToneOf(candidateText)
	switch {
	case q == c:
		return 1.0
	case (q == TonePositive && c == ToneNegative) || (q == ToneNegative && c == TonePositive):
		return 0.0
	default:
		return 0.5
	}
}

// ContainsEntity reports whether text mentions a recognized entity. With
// an explicit entity list, membership is checked directly; with none
// configured, any capitalized word (other than the first word of a
// sentence) is treated as a plausible name mention.
func (l *Lexicon) ContainsEntity(text string) bool {
	if len(l.entities) > 0 {
		for _, tok := range tokenize(text) {
			if _, ok := l.entities[tok]; ok {
				return true
			}
		}
		return false
	}
	words := strings.Fields(text)
	for i, w := range words {
		if i == 0 {
			continue
		}
		trimmed := strings.Trim(w, ".,!?;:\"'")
		if trimmed == "" {
			continue
		}
		if r := trimmed[0]; r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// tokenize lower-cases and splits on runs of anything other than ASCII
// letters and digits.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	return fields
}

// IsQuestion reports whether text is phrased as a question.
func IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasSuffix(trimmed, "?")
}
