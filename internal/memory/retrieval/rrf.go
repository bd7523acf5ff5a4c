package retrieval

// Default Reciprocal Rank Fusion tuning, matching spec §4.6.
const (
	defaultRRFK         = 60
	defaultSemanticWeight = 0.7
	defaultKeywordWeight  = 0.3
)

// ReciprocalRankFusion combines a semantic ranking and a keyword ranking
// of the same candidate set into one fused score per memory id, adapted
// from the teacher's reciprocalRankFusion (vector+BM25 weighting,
// generalized to arbitrary rrfK/weights).
func ReciprocalRankFusion(semanticOrder, keywordOrder []string, rrfK int, semanticWeight, keywordWeight float64) map[string]float64 {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	if semanticWeight == 0 && keywordWeight == 0 {
		semanticWeight, keywordWeight = defaultSemanticWeight, defaultKeywordWeight
	}

	fused := make(map[string]float64)
	for rank, id := range semanticOrder {
		fused[id] += semanticWeight / float64(rank+1+rrfK)
	}
	for rank, id := range keywordOrder {
		fused[id] += keywordWeight / float64(rank+1+rrfK)
	}
	return fused
}
