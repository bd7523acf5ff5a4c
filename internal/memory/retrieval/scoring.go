package retrieval

import (
	"math"
	"time"

	"github.com/driftline/memorycore/internal/memory/model"
)

// Scoring weights for the composite relevance formula.
const (
	weightContentSimilarity = 0.35
	weightEmotionalAlign    = 0.20
	weightTemporalRelevance = 0.20
	weightImportance        = 0.15
	weightAccessFrequency   = 0.10
	maxAnswerBoost          = 0.5

	// clusterBiasMultiplier amplifies the content similarity of
	// candidates drawn from the query's nearest cluster before the rest
	// of the composite formula runs.
	clusterBiasMultiplier = 2.0

	// relevanceGate and importanceBypass gate which candidates survive
	// into the re-rank/fusion stages.
	relevanceGate   = 0.3
	importanceBypass = 0.8
)

// Scored is one candidate carried through the pipeline with its
// intermediate and final scores.
type Scored struct {
	Memory           *model.Memory
	ContentSimilarity float64
	Composite         float64
	KeywordScore      float64
}

// TemporalRelevance is the step function of age described by spec §4.6:
// ≤1d→1.0, ≤7d→0.8, ≤30d→0.6, ≤90d→0.4, else 0.2.
func TemporalRelevance(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	switch {
	case ageDays <= 1:
		return 1.0
	case ageDays <= 7:
		return 0.8
	case ageDays <= 30:
		return 0.6
	case ageDays <= 90:
		return 0.4
	default:
		return 0.2
	}
}

// AnswerBoost grants up to maxAnswerBoost when queryText is a question
// and candidateText mentions a recognized entity, itself not phrased as
// a question (a candidate that is itself a question is unlikely to be
// the answer being searched for).
func AnswerBoost(lex *Lexicon, queryText, candidateText string) float64 {
	if !IsQuestion(queryText) {
		return 0
	}
	if IsQuestion(candidateText) {
		return 0
	}
	if !lex.ContainsEntity(candidateText) {
		return 0
	}
	return maxAnswerBoost
}

// Composite computes the final per-candidate relevance score, applying
// cluster bias to contentSimilarity first when inCluster is true.
func Composite(lex *Lexicon, m *model.Memory, contentSimilarity float64, queryText string, inCluster bool, now time.Time) float64 {
	sim := contentSimilarity
	if inCluster {
		sim *= clusterBiasMultiplier
	}

	emotional := lex.EmotionalAlignment(queryText, m.Content)
	temporal := TemporalRelevance(m.CreatedAt, now)
	boost := AnswerBoost(lex, queryText, m.Content)

	composite := sim*weightContentSimilarity +
		emotional*weightEmotionalAlign +
		temporal*weightTemporalRelevance +
		m.ImportanceScore*weightImportance +
		math.Log10(float64(m.AccessFrequency)+1)*weightAccessFrequency +
		boost
	return composite * m.DecayFactor
}

// PassesGate reports whether a composite score (or a high-importance
// bypass) is enough to survive the relevance gate.
func PassesGate(composite float64, m *model.Memory) bool {
	return composite > relevanceGate || m.ImportanceScore >= importanceBypass
}
