// Package vecmath collects the vector arithmetic shared by the ANN index,
// the retrieval pipeline's MMR re-rank, and the semantic cache, so the
// cosine-similarity formula is written once rather than drifting between
// call sites (per the "duplicate methods" design note).
package vecmath

import "math"

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// Returns 0 if either vector is empty, of mismatched length, or zero-norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarityWithNorms is the same computation but takes precomputed
// norms, avoiding repeated sqrt/sum work on the ANN hot path where a
// node's norm is cached at insert time.
func CosineSimilarityWithNorms(a, b []float32, normA, normB float64) float64 {
	if len(a) != len(b) || len(a) == 0 || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

// Clamp01 clamps x to the closed interval [0, 1].
func Clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0.0), 1.0)
}
