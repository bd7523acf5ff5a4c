// Package decay implements the periodic background maintenance tasks
// that keep stored memories' relevance scores honest over time: decay
// recomputation, decayed-row cleanup, retention purge, and cluster
// optimization.
package decay

import (
	"math"
	"time"
)

// recompute applies the decay formula exactly: a half-life exponential
// decay boosted by emotional weight, access frequency, and importance so
// that frequently-accessed or important memories fade more slowly.
func recompute(age time.Duration, halfLife time.Duration, emotionalWeight float64, accessFrequency int64, importance float64) float64 {
	ageRatio := age.Hours() / halfLife.Hours()
	base := math.Pow(0.5, ageRatio)
	emotionalBoost := 1 + 0.5*emotionalWeight
	accessBoost := 1 + 0.2*math.Log10(float64(accessFrequency)+1)
	importanceBoost := 0.5 + 0.5*importance
	decay := base * emotionalBoost * accessBoost * importanceBoost
	if decay < 0 {
		return 0
	}
	if decay > 1 {
		return 1
	}
	return decay
}
