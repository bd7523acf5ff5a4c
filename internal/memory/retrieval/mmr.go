package retrieval

import (
	"math"

	"github.com/driftline/memorycore/internal/memory/vecmath"
)

// defaultDiversityPenalty is spec §4.6's default re-rank penalty.
const defaultDiversityPenalty = 0.1

// DiversityRerank re-orders candidates (already sorted by relevance,
// most-relevant first) to penalize near-duplicates, adapted from the
// teacher's MMR: each pick balances a candidate's own relevance against
// its maximum similarity to what's already been selected, using
// penalty in place of MMR's (1-lambda) diversity weight.
func DiversityRerank(candidates []Scored, penalty float64) []Scored {
	if penalty <= 0 {
		penalty = defaultDiversityPenalty
	}
	if len(candidates) <= 1 {
		return candidates
	}

	selected := []Scored{candidates[0]}
	remaining := make([]Scored, len(candidates)-1)
	copy(remaining, candidates[1:])

	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				sim := vecmath.CosineSimilarity(cand.Memory.Embedding, sel.Memory.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := cand.Composite - penalty*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}
